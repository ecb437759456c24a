// Package pubsub carries intake batches and change messages between
// processes and within one process.
package pubsub

import (
	"context"
	"errors"

	"solana-token-feed/internal/domain"
)

// ChangePublisher emits change messages. Delivery is at most once with no
// acknowledgement.
type ChangePublisher interface {
	Publish(ctx context.Context, change domain.Change) error
}

// PublisherFunc adapts a function to ChangePublisher.
type PublisherFunc func(ctx context.Context, change domain.Change) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, change domain.Change) error {
	return f(ctx, change)
}

// Multi fans a change out to several publishers. Every publisher is tried;
// the returned error joins their failures.
type Multi []ChangePublisher

var _ ChangePublisher = Multi(nil)

// Publish implements ChangePublisher.
func (m Multi) Publish(ctx context.Context, change domain.Change) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, change); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every change.
var Discard ChangePublisher = PublisherFunc(func(context.Context, domain.Change) error { return nil })
