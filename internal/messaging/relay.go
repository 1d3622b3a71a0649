package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/BTreeMap/ShiftGuide/internal/flow"
	"github.com/BTreeMap/ShiftGuide/internal/models"
	"github.com/BTreeMap/ShiftGuide/internal/store"
)

// Text commands understood by the relay.
const (
	CommandStart = "start"
	CommandUndo  = "undo"
	CommandStop  = "stop"
)

// Fixed relay replies.
const (
	MsgNoSession     = "Send START to begin a session."
	MsgStopped       = "Your session has ended. Send START whenever you want to begin again."
	MsgNothingToUndo = "There is nothing to undo yet."
	MsgComplete      = "This session is complete. Send START to begin a new one."
	MsgFailure       = "Sorry, something went wrong on our side. Please send your answer again."
)

// Engine is the part of flow.Engine the relay drives.
type Engine interface {
	Start(ctx context.Context, userID, sessionID string) (models.TurnOutput, error)
	Turn(ctx context.Context, sessionID string, input *string) (models.TurnOutput, error)
	Undo(ctx context.Context, sessionID string) (models.TurnOutput, error)
	Abandon(ctx context.Context, sessionID string) error
	Get(ctx context.Context, sessionID string) (*models.SessionContext, error)
	FindActive(userID string) (string, bool)
}

// RelayStore is the inbound dedup and outbox persistence the relay needs.
type RelayStore interface {
	store.DedupRepo
	EnqueueOutboxMessage(recipient, channel, body, dedupeKey string) (string, error)
}

// Relay turns inbound channel messages into dialogue turns keyed by the sender's phone
// number and queues the replies in the outbox.
type Relay struct {
	engine   Engine
	store    RelayStore
	services map[string]Service
}

// NewRelay creates a Relay over the given channels.
func NewRelay(engine Engine, st RelayStore, services ...Service) *Relay {
	r := &Relay{
		engine:   engine,
		store:    st,
		services: make(map[string]Service, len(services)),
	}
	for _, svc := range services {
		r.services[svc.Name()] = svc
	}
	return r
}

// Run consumes every channel's inbound messages until ctx is cancelled or the
// channels close. Messages of one channel are handled in arrival order.
func (r *Relay) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range r.services {
		g.Go(func() error {
			slog.Info("Relay.Run: consuming channel", "channel", svc.Name())
			for {
				select {
				case <-gctx.Done():
					return nil
				case msg, ok := <-svc.Inbound():
					if !ok {
						slog.Info("Relay.Run: channel closed", "channel", svc.Name())
						return nil
					}
					if err := r.Handle(gctx, svc, msg); err != nil {
						slog.Error("Relay.Run: message not handled", "channel", svc.Name(), "id", msg.ID, "error", err)
					}
				}
			}
		})
	}
	return g.Wait()
}

// Handle processes one inbound message. Redelivered messages are ignored once their
// reply has been queued. A redelivered message whose reply was never queued gets the
// session's current prompt without running the turn again.
func (r *Relay) Handle(ctx context.Context, svc Service, msg models.InboundMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	from, err := svc.ValidateAndCanonicalizeRecipient(msg.From)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}

	var reply string
	fresh := true
	if msg.ID != "" {
		if fresh, err = r.store.RecordInbound(msg.ID, from); err != nil {
			return fmt.Errorf("failed to record inbound message: %w", err)
		}
	}
	if fresh {
		reply = r.respond(ctx, from, msg.Body)
	} else {
		processed, err := r.store.IsProcessed(msg.ID)
		if err != nil {
			return fmt.Errorf("failed to check inbound message: %w", err)
		}
		if processed {
			slog.Info("Relay.Handle: duplicate message ignored", "id", msg.ID, "from", from)
			return nil
		}
		slog.Warn("Relay.Handle: redelivered message was never answered, resending prompt", "id", msg.ID, "from", from)
		reply = r.currentPrompt(ctx, from)
	}

	if _, err := r.store.EnqueueOutboxMessage(from, svc.Name(), reply, msg.ID); err != nil {
		return fmt.Errorf("failed to queue reply: %w", err)
	}
	if msg.ID != "" {
		if err := r.store.MarkProcessed(msg.ID); err != nil {
			slog.Warn("Relay.Handle: mark processed failed", "id", msg.ID, "error", err)
		}
	}
	return nil
}

// respond runs the command or turn for one message and returns the reply text.
func (r *Relay) respond(ctx context.Context, from, body string) string {
	sessionID, active := r.engine.FindActive(from)

	switch strings.ToLower(strings.TrimSpace(body)) {
	case CommandStart:
		if active {
			if err := r.engine.Abandon(ctx, sessionID); err != nil && !errors.Is(err, flow.ErrSessionNotFound) {
				slog.Error("Relay.respond: abandon before restart failed", "sessionID", sessionID, "error", err)
				return MsgFailure
			}
		}
		out, err := r.engine.Start(ctx, from, "")
		if err != nil {
			slog.Error("Relay.respond: start failed", "from", from, "error", err)
			return MsgFailure
		}
		slog.Info("Relay.respond: session started", "sessionID", out.SessionID, "from", from)
		return out.Text

	case CommandStop:
		if !active {
			return MsgNoSession
		}
		if err := r.engine.Abandon(ctx, sessionID); err != nil {
			return r.errorReply(sessionID, err)
		}
		return MsgStopped

	case CommandUndo:
		if !active {
			return MsgNoSession
		}
		out, err := r.engine.Undo(ctx, sessionID)
		if err != nil {
			return r.errorReply(sessionID, err)
		}
		return out.Text
	}

	if !active {
		return MsgNoSession
	}
	out, err := r.engine.Turn(ctx, sessionID, &body)
	if err != nil {
		return r.errorReply(sessionID, err)
	}
	return out.Text
}

// currentPrompt is the last text the sender's active session showed.
func (r *Relay) currentPrompt(ctx context.Context, from string) string {
	sessionID, ok := r.engine.FindActive(from)
	if !ok {
		return MsgNoSession
	}
	sc, err := r.engine.Get(ctx, sessionID)
	if err != nil {
		return r.errorReply(sessionID, err)
	}
	return sc.LastPrompt
}

func (r *Relay) errorReply(sessionID string, err error) string {
	switch {
	case errors.Is(err, flow.ErrNothingToUndo):
		return MsgNothingToUndo
	case errors.Is(err, flow.ErrSessionComplete):
		return MsgComplete
	case errors.Is(err, flow.ErrSessionNotFound):
		return MsgNoSession
	default:
		slog.Error("Relay.respond: engine failed", "sessionID", sessionID, "error", err)
		return MsgFailure
	}
}

// Deliver sends an outbox message on its channel. It is the OutboxSender send function.
func (r *Relay) Deliver(ctx context.Context, msg store.OutboxMessage) error {
	svc, ok := r.services[msg.Channel]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, msg.Channel)
	}
	return svc.SendMessage(ctx, msg.Recipient, msg.Body)
}
