package messaging

import (
	"context"
	"strconv"
)

// Routing keys are hierarchical strings with the payment number as the last
// segment; consumers bind with glob patterns over the prefix. Each leg of
// the pipeline gets its own request and response namespace.
const (
	PreAuthRequestKeyPrefix  = "payment.stub.pre.auth.req"
	PreAuthResponseKeyPrefix = "payment.stub.pre.auth.resp"
	AuthRequestKeyPrefix     = "payment.stub.auth.req"
	AuthResponseKeyPrefix    = "payment.stub.auth.resp"
)

// Key builds the routing key for one payment under a namespace prefix.
func Key(prefix string, paymentNumber int64) string {
	return prefix + "." + strconv.FormatInt(paymentNumber, 10)
}

// Pattern builds the wildcard binding that matches every key under a prefix.
func Pattern(prefix string) string {
	return prefix + ".*"
}

// Message is one delivered payload with the routing key it was published
// under.
type Message struct {
	Key     string
	Payload []byte
}

// Handler consumes a delivered message. Handlers run on the transport's
// worker context, one per arriving message; they must not block on the
// transport itself.
type Handler func(ctx context.Context, msg Message)

// Transport is a topic-based publish/subscribe broker. Publish is
// fire-and-forget: there is no transactional coupling with the entity
// store, which leaves an inconsistency window on a crash between persist
// and publish.
type Transport interface {
	Publish(ctx context.Context, key string, payload []byte) error
	// Subscribe binds handler to every key matching pattern until ctx is
	// cancelled.
	Subscribe(ctx context.Context, pattern string, handler Handler) error
	Close() error
}
