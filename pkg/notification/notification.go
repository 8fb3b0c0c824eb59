package notification

import "context"

// Pusher delivers a push notification to a single user's devices. Delivery is
// best effort; a nil error only means the transport accepted the message.
type Pusher interface {
	Push(ctx context.Context, userID, title, body string, extras map[string]interface{}) error
}

// SMSSender delivers a raw SMS to a phone number.
type SMSSender interface {
	Send(ctx context.Context, phone, message string) error
}

// FirstOf tries each transport in order and stops at the first success.
// Used to prefer the live WebSocket channel and fall back to mobile push.
type FirstOf []Pusher

func (f FirstOf) Push(ctx context.Context, userID, title, body string, extras map[string]interface{}) error {
	var err error
	for _, p := range f {
		if err = p.Push(ctx, userID, title, body, extras); err == nil {
			return nil
		}
	}
	return err
}
