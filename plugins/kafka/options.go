package kafka

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// Option configures the Kafka transport plugin's writer and readers.
type Option func(*options)

type options struct {
	// Writer
	balancer  kafka.Balancer
	batchSize int
	async     bool

	// Readers (request and reply consumers alike)
	minBytes int
	maxBytes int
	maxWait  time.Duration

	// General
	dialer *kafka.Dialer
}

func defaults() options {
	return options{
		balancer:  &kafka.LeastBytes{},
		batchSize: 100,
		minBytes:  1,
		maxBytes:  10e6, // 10 MB
		maxWait:   500 * time.Millisecond,
	}
}

// WithBalancer sets the partition balancer for the writer.
func WithBalancer(b kafka.Balancer) Option {
	return func(o *options) { o.balancer = b }
}

// WithBatchSize sets the maximum batch size for writes.
func WithBatchSize(n int) Option {
	return func(o *options) { o.batchSize = n }
}

// WithAsync enables asynchronous writes. Transact always waits on its reply
// Promise regardless, so enabling this only affects how quickly the
// outbound write call itself returns.
func WithAsync(async bool) Option {
	return func(o *options) { o.async = async }
}

// WithMaxBytes sets the maximum bytes per fetch.
func WithMaxBytes(n int) Option {
	return func(o *options) { o.maxBytes = n }
}

// WithMaxWait sets the maximum wait time for fetches.
func WithMaxWait(d time.Duration) Option {
	return func(o *options) { o.maxWait = d }
}

// WithDialer sets a custom dialer for TLS/SASL connections.
func WithDialer(d *kafka.Dialer) Option {
	return func(o *options) { o.dialer = d }
}
