// Package messaging connects text channels to the dialogue engine.
//
// A Service wraps one channel (WhatsApp through whatsmeow, or Twilio SMS/WhatsApp) and
// exposes its inbound text messages. The Relay turns those messages into engine turns and
// queues the replies in the store outbox, which an OutboxSender delivers through Deliver.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/BTreeMap/ShiftGuide/internal/models"
)

// Channel names recorded on outbox messages.
const (
	ChannelWhatsApp = "whatsapp"
	ChannelTwilio   = "twilio"
)

const (
	// DefaultChannelBufferSize defines the buffer size of inbound channels
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds how long an inbound message waits for buffer space
	DefaultChannelTimeout = 1 * time.Second
	// minPhoneDigits is the shortest accepted phone number
	minPhoneDigits = 6
)

var (
	// ErrServiceStopped is returned when sending through a stopped service.
	ErrServiceStopped = errors.New("messaging service stopped")
	// ErrUnknownChannel is returned when no service is registered for a channel.
	ErrUnknownChannel = errors.New("unknown messaging channel")

	nonDigitRegex = regexp.MustCompile(`\D`)
)

// Service is one text channel.
type Service interface {
	// Name is the channel name used on outbox messages.
	Name() string

	// ValidateAndCanonicalizeRecipient validates a phone number and returns it as digits.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins delivering inbound messages.
	Start(ctx context.Context) error

	// Stop stops the service and closes the inbound channel.
	Stop() error

	// Inbound returns a channel of incoming text messages.
	Inbound() <-chan models.InboundMessage
}

// canonicalizePhone strips everything but digits, so "whatsapp:+1 (555) 123-4567"
// becomes "15551234567".
func canonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := nonDigitRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < minPhoneDigits {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum %d digits required)", canonical, minPhoneDigits)
	}
	if canonical != recipient {
		slog.Debug("messaging canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// emit forwards msg unless the buffer stays full past DefaultChannelTimeout.
func emit(ch chan<- models.InboundMessage, msg models.InboundMessage, service string) bool {
	select {
	case ch <- msg:
		return true
	case <-time.After(DefaultChannelTimeout):
		slog.Warn(service+": inbound channel blocked, dropping message", "from", msg.From, "id", msg.ID, "timeout", DefaultChannelTimeout)
		return false
	}
}
