package messaging

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	twilioClient "github.com/twilio/twilio-go/client"

	"github.com/BTreeMap/ShiftGuide/internal/models"
	"github.com/BTreeMap/ShiftGuide/internal/twiliowhatsapp"
	"github.com/BTreeMap/ShiftGuide/internal/util"
)

// emptyTwiML acknowledges a webhook without replying inline; replies go out through the outbox.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// TwilioService implements Service using the Twilio API and its inbound webhook.
type TwilioService struct {
	client    twiliowhatsapp.TwilioSender
	inbound   chan models.InboundMessage
	validator *twilioClient.RequestValidator
	publicURL string

	mu      sync.RWMutex
	stopped bool
}

// TwilioOption configures a TwilioService.
type TwilioOption func(*TwilioService)

// WithSignatureValidation rejects webhook requests whose X-Twilio-Signature does not
// match publicURL signed with authToken.
func WithSignatureValidation(authToken, publicURL string) TwilioOption {
	return func(s *TwilioService) {
		v := twilioClient.NewRequestValidator(authToken)
		s.validator = &v
		s.publicURL = publicURL
	}
}

// NewTwilioService creates a TwilioService sending through client.
func NewTwilioService(client twiliowhatsapp.TwilioSender, opts ...TwilioOption) *TwilioService {
	s := &TwilioService{
		client:  client,
		inbound: make(chan models.InboundMessage, DefaultChannelBufferSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TwilioService) Name() string { return ChannelTwilio }

// ValidateAndCanonicalizeRecipient returns the phone number as digits.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// Start is a no-op; inbound messages arrive through TwilioWebhookHandler.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the inbound channel. It is safe to call more than once.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.inbound)
	return nil
}

// SendMessage sends body to a phone number.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return ErrServiceStopped
	}

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService.SendMessage: invalid recipient", "error", err, "to", to)
		return err
	}
	return s.client.SendMessage(ctx, canonicalTo, body)
}

func (s *TwilioService) Inbound() <-chan models.InboundMessage {
	return s.inbound
}

// TwilioWebhookHandler handles inbound Twilio webhook requests.
func (s *TwilioService) TwilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("TwilioService.TwilioWebhookHandler: failed to parse form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if s.validator != nil {
		params := make(map[string]string, len(r.PostForm))
		for k := range r.PostForm {
			params[k] = r.PostForm.Get(k)
		}
		if !s.validator.Validate(s.publicURL, params, r.Header.Get("X-Twilio-Signature")) {
			slog.Warn("TwilioService.TwilioWebhookHandler: signature mismatch", "remote", r.RemoteAddr)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	from := r.FormValue("From")
	body := r.FormValue("Body")
	if from == "" || body == "" {
		slog.Warn("TwilioService.TwilioWebhookHandler: missing fields", "from_set", from != "", "body_set", body != "")
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}
	canonicalFrom, err := s.ValidateAndCanonicalizeRecipient(from)
	if err != nil {
		slog.Warn("TwilioService.TwilioWebhookHandler: invalid sender", "error", err)
		http.Error(w, "Invalid sender", http.StatusBadRequest)
		return
	}

	id := r.FormValue("MessageSid")
	if id == "" {
		id = util.GenerateMessageID()
	}
	msg := models.InboundMessage{
		ID:   id,
		From: canonicalFrom,
		Body: body,
		Time: time.Now().Unix(),
	}

	s.mu.RLock()
	accepted := !s.stopped && emit(s.inbound, msg, "TwilioService.TwilioWebhookHandler")
	s.mu.RUnlock()
	if !accepted {
		// Non-2xx makes Twilio retry; the dedup record absorbs the repeat.
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}

	slog.Debug("TwilioService.TwilioWebhookHandler: message accepted", "from", canonicalFrom, "id", msg.ID)
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(emptyTwiML))
}
