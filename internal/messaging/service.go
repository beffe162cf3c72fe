// Package messaging provides pluggable chat transports for the intake bot.
package messaging

import (
	"context"

	"github.com/dragent-dev/dragent/internal/models"
)

// Constants for messaging service configuration
const (
	// DefaultChannelBufferSize defines the default buffer size for response channels
	DefaultChannelBufferSize = 100
)

// Service defines a pluggable message delivery abstraction.
// It supports sending messages and provides a channel of incoming responses.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient identifier.
	// Returns the canonicalized recipient and an error if validation fails.
	// This allows each service to implement its own recipient validation rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendText sends a plain text message to a recipient.
	SendText(ctx context.Context, to string, body string) error

	// SendChoices sends a message together with a set of suggested replies.
	// Transports without native buttons render the choices as numbered lines.
	SendChoices(ctx context.Context, to string, body string, choices []string) error

	// Start begins any background processing (e.g., polling for events).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Responses returns a channel of incoming user responses.
	Responses() <-chan models.Response
}
