package store

import (
	"time"
)

// DedupRecord is an inbound channel message that has been seen.
type DedupRecord struct {
	MessageID   string     `json:"message_id"`
	Sender      string     `json:"sender"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

// DedupRepo guards the channel relay against redelivered inbound messages.
type DedupRepo interface {
	// IsDuplicate reports whether a message ID has already been recorded.
	IsDuplicate(messageID string) (bool, error)

	// RecordInbound records a message. It returns false if the message was
	// already recorded.
	RecordInbound(messageID, sender string) (bool, error)

	// MarkProcessed stamps processed_at once the turn for the message has completed.
	MarkProcessed(messageID string) error

	// IsProcessed reports whether a recorded message has been stamped processed.
	IsProcessed(messageID string) (bool, error)
}
