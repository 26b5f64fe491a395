package evm

import "context"

// HeadSubscriber delivers new block headers as they are produced.
type HeadSubscriber interface {
	// SubscribeNewHeads subscribes to eth_subscribe("newHeads").
	SubscribeNewHeads(ctx context.Context) (<-chan Head, error)

	// Close closes the connection and all subscription channels.
	Close() error
}

// Head is a newHeads notification.
type Head struct {
	Number uint64
	Hash   string
}
