package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BTreeMap/ShiftGuide/internal/models"
	"github.com/BTreeMap/ShiftGuide/internal/whatsapp"
)

// WhatsAppService implements Service using the whatsmeow-based whatsapp client.
type WhatsAppService struct {
	client  whatsapp.WhatsAppSender
	inbound chan models.InboundMessage

	mu      sync.RWMutex
	stopped bool
}

// NewWhatsAppService creates a WhatsAppService wrapping client.
func NewWhatsAppService(client whatsapp.WhatsAppSender) *WhatsAppService {
	return &WhatsAppService{
		client:  client,
		inbound: make(chan models.InboundMessage, DefaultChannelBufferSize),
	}
}

func (s *WhatsAppService) Name() string { return ChannelWhatsApp }

// ValidateAndCanonicalizeRecipient returns the phone number as digits.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// Start subscribes to incoming messages when the client can deliver them.
func (s *WhatsAppService) Start(ctx context.Context) error {
	src, ok := s.client.(whatsapp.InboundSource)
	if !ok {
		slog.Debug("WhatsAppService.Start: client cannot receive, inbound disabled")
		return nil
	}
	src.OnMessage(s.receive)
	slog.Info("WhatsAppService.Start: receiving messages")
	return nil
}

// Stop closes the inbound channel. It is safe to call more than once.
func (s *WhatsAppService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.inbound)
	if d, ok := s.client.(interface{ Disconnect() }); ok {
		d.Disconnect()
	}
	slog.Info("WhatsAppService.Stop: stopped")
	return nil
}

// SendMessage sends body to a phone number.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if err := s.client.SendMessage(ctx, canonicalTo, body); err != nil {
		slog.Error("WhatsAppService.SendMessage: send failed", "error", err, "to", canonicalTo)
		return err
	}
	return nil
}

func (s *WhatsAppService) Inbound() <-chan models.InboundMessage {
	return s.inbound
}

// receive is the client callback. The read lock keeps Stop from closing the channel
// mid-send.
func (s *WhatsAppService) receive(msg models.InboundMessage) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return
	}
	if emit(s.inbound, msg, "WhatsAppService.receive") {
		slog.Debug("WhatsAppService.receive: message forwarded", "from", msg.From, "id", msg.ID)
	}
}
