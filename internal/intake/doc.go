// Package intake coalesces arrivals per address over a short time window and
// hands each window's contents to a flush callback as one batch.
package intake
