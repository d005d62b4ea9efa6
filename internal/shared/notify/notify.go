// Package notify delivers fire-and-forget messages to clients, floor screens and other services.
package notify

import (
	"context"
	"errors"
	"strings"
)

//go:generate mockgen -destination=mocks/mock_notifier.go -package=mocks . Notifier

// Notifier delivers one message on a channel. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, channel string, msg Message) error
}

// Message is the payload carried on a channel.
type Message struct {
	Event string                 `json:"event"`
	Text  string                 `json:"text,omitempty"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

// OrderChannel is the client-facing channel of an order, keyed by its tracking token.
func OrderChannel(trackingToken string) string {
	return "order:" + trackingToken
}

// WorkCenterChannel is the queue channel of a machine.
func WorkCenterChannel(workCenterID string) string {
	return "workcenter:" + workCenterID
}

// ChannelKind returns the part of a channel before the colon.
func ChannelKind(channel string) string {
	kind, _, _ := strings.Cut(channel, ":")
	return kind
}

// Multi fans a message out to several notifiers and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, channel string, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, channel, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards every message.
type Nop struct{}

func (Nop) Notify(context.Context, string, Message) error { return nil }
