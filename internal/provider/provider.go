// Package provider holds the narrow contracts the pipeline consumes and the
// concrete external-service clients behind them.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable means the provider has no credential configured. It fails
// fast and is never retried.
var ErrUnavailable = errors.New("provider: credential not configured")

// UpstreamError wraps a transport or rate-limit failure from an external
// capability. The pipeline treats it as retryable.
type UpstreamError struct {
	Provider string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// DeliveryError means the messaging provider rejected the recipient or
// payload. It currently folds into the generic retry path.
type DeliveryError struct {
	To  string
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s: %v", e.To, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

type Message struct {
	Role    string
	Content string
}

// TextResponder composes a reply to a customer message.
type TextResponder interface {
	Compose(ctx context.Context, history []Message) (string, error)
}

// Speaker turns reply text into audio bytes the renderer accepts (MP3).
type Speaker interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

// VideoRenderer produces a lip-synced talking-head video from an audio file
// and an avatar image. Both URLs must be externally fetchable. The call
// blocks until the render finishes or its internal timeout fires.
type VideoRenderer interface {
	Render(ctx context.Context, audioURL, imageURL string) (string, error)
}

// Notifier sends WhatsApp messages to a phone number and returns the
// provider's delivery id.
type Notifier interface {
	SendText(ctx context.Context, to, body string) (string, error)
	SendMedia(ctx context.Context, to, mediaURL, caption string) (string, error)
}
