// Package notify delivers out-of-band messages to principals. Delivery is
// best effort: callers report outcomes through a Sink and never fail an
// operation because a notification could not be sent.
package notify

import "context"

// DeliveryResult classifies a notification attempt.
type DeliveryResult int

const (
	// Delivered: the message reached the principal.
	Delivered DeliveryResult = iota
	// Blocked: the principal cannot be reached at all (blocked the bot,
	// deleted the chat). Never retried.
	Blocked
	// Failed: a transport or service failure; a later attempt may work.
	Failed
)

func (d DeliveryResult) String() string {
	switch d {
	case Delivered:
		return "delivered"
	case Blocked:
		return "blocked"
	default:
		return "failed"
	}
}

// Sink sends one message to one principal.
type Sink interface {
	Notify(ctx context.Context, principal int64, message string) DeliveryResult
}

// Discard is a Sink that drops every message. Used when no notification
// transport is configured.
type Discard struct{}

func (Discard) Notify(ctx context.Context, principal int64, message string) DeliveryResult {
	return Delivered
}

// BroadcastSummary tallies a fan-out delivery.
type BroadcastSummary struct {
	Delivered int `json:"delivered"`
	Blocked   int `json:"blocked"`
	Failed    int `json:"failed"`
}

// Broadcast sends the message to every principal in order, skipping blocked
// recipients and counting outcomes. Sequential on purpose: the sink's own
// rate limiter paces the fan-out.
func Broadcast(ctx context.Context, sink Sink, principals []int64, message string) BroadcastSummary {
	var summary BroadcastSummary
	for _, p := range principals {
		if ctx.Err() != nil {
			summary.Failed += 1
			continue
		}
		switch sink.Notify(ctx, p, message) {
		case Delivered:
			summary.Delivered++
		case Blocked:
			summary.Blocked++
		default:
			summary.Failed++
		}
	}
	return summary
}
