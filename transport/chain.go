package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Chain tries its transports in order and uses the first one that takes the envelope.
type Chain struct {
	transports []Transport
}

func NewChain(transports ...Transport) *Chain {
	return &Chain{transports: transports}
}

func (c *Chain) Name() string {
	names := make([]string, 0, len(c.transports))
	for _, t := range c.transports {
		names = append(names, t.Name())
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

func (c *Chain) Reachable(deviceID string) bool {
	for _, t := range c.transports {
		if t.Reachable(deviceID) {
			return true
		}
	}
	return false
}

// Deliver returns ErrUnreachable when no transport can reach the device, and the last
// transport error when every reachable one failed.
func (c *Chain) Deliver(ctx context.Context, deviceID string, env Envelope) error {
	var lastErr error
	for _, t := range c.transports {
		if !t.Reachable(deviceID) {
			continue
		}
		err := t.Deliver(ctx, deviceID, env)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, ErrUnreachable) {
			lastErr = fmt.Errorf("%s: %w", t.Name(), err)
		}
	}
	if lastErr != nil {
		return lastErr
	}
	return ErrUnreachable
}
