package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"solana-token-feed/internal/domain"
	"solana-token-feed/internal/logging"
)

// Default channel names.
const (
	DefaultRawChannel    = "raw_tokens"
	DefaultChangeChannel = "state_changes"
)

// RedisBusOptions configures a RedisBus.
type RedisBusOptions struct {
	RawChannel    string
	ChangeChannel string
	Logger        logrus.FieldLogger
}

// RedisBus moves intake batches and change messages over Redis pub/sub.
type RedisBus struct {
	client        goredis.UniversalClient
	rawChannel    string
	changeChannel string
	logger        logrus.FieldLogger
}

var _ ChangePublisher = (*RedisBus)(nil)

// NewRedisBus creates a bus on client.
func NewRedisBus(client goredis.UniversalClient, opts RedisBusOptions) *RedisBus {
	if opts.RawChannel == "" {
		opts.RawChannel = DefaultRawChannel
	}
	if opts.ChangeChannel == "" {
		opts.ChangeChannel = DefaultChangeChannel
	}
	return &RedisBus{
		client:        client,
		rawChannel:    opts.RawChannel,
		changeChannel: opts.ChangeChannel,
		logger:        logging.Component(opts.Logger, "redis_bus"),
	}
}

// Publish sends change as JSON on the change channel.
func (b *RedisBus) Publish(ctx context.Context, change domain.Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	if err := b.client.Publish(ctx, b.changeChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

// Submit sends merged candidates as one batch on the raw channel.
func (b *RedisBus) Submit(ctx context.Context, candidates []domain.TokenCandidate) error {
	payload, err := json.Marshal(domain.CandidateBatch{
		Tokens:     candidates,
		IngestedAt: time.Now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	if err := b.client.Publish(ctx, b.rawChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish batch: %w", err)
	}
	return nil
}

// SubscribeRaw calls handle with every raw-channel payload until ctx is done.
func (b *RedisBus) SubscribeRaw(ctx context.Context, handle func(ctx context.Context, payload []byte)) error {
	return b.subscribe(ctx, b.rawChannel, handle)
}

// SubscribeChanges calls handle with every change-channel payload until ctx is done.
func (b *RedisBus) SubscribeChanges(ctx context.Context, handle func(ctx context.Context, payload []byte)) error {
	return b.subscribe(ctx, b.changeChannel, handle)
}

func (b *RedisBus) subscribe(ctx context.Context, channel string, handle func(context.Context, []byte)) error {
	sub := b.client.Subscribe(ctx, channel)
	defer sub.Close()

	// Receive blocks until the server confirms the subscription.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	b.logger.WithField("channel", channel).Info("subscribed")

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("subscription %s closed", channel)
			}
			handle(ctx, []byte(msg.Payload))
		}
	}
}

// Ping checks the connection.
func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
