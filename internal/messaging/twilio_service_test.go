package messaging

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/BTreeMap/ShiftGuide/internal/twiliowhatsapp"
)

func webhookRequest(form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhook/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestTwilioWebhookHandler(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())

	rr := httptest.NewRecorder()
	svc.TwilioWebhookHandler(rr, webhookRequest(url.Values{
		"From":       {"whatsapp:+15551234567"},
		"Body":       {"I can't focus at work"},
		"MessageSid": {"SM123"},
	}))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/xml" {
		t.Errorf("unexpected content type %q", ct)
	}

	msg := <-svc.Inbound()
	if msg.ID != "SM123" || msg.From != "15551234567" || msg.Body != "I can't focus at work" {
		t.Errorf("unexpected inbound message %+v", msg)
	}

	rr = httptest.NewRecorder()
	svc.TwilioWebhookHandler(rr, webhookRequest(url.Values{"From": {"+15551234567"}, "Body": {"yes"}}))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 without MessageSid, got %d", rr.Code)
	}
	if msg := <-svc.Inbound(); !strings.HasPrefix(msg.ID, "m_") {
		t.Errorf("expected a generated message id, got %q", msg.ID)
	}

	tests := []struct {
		name string
		form url.Values
	}{
		{"missing body", url.Values{"From": {"+15551234567"}}},
		{"missing sender", url.Values{"Body": {"yes"}}},
		{"short sender", url.Values{"From": {"+12"}, "Body": {"yes"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			svc.TwilioWebhookHandler(rr, webhookRequest(tt.form))
			if rr.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rr.Code)
			}
		})
	}
}

// twilioSignature signs a webhook the way Twilio documents it: the URL followed by the
// sorted form parameters, HMAC-SHA1 with the auth token, base64.
func twilioSignature(token, publicURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(publicURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestTwilioWebhookSignature(t *testing.T) {
	const (
		token     = "12345"
		publicURL = "https://shiftguide.example.com/webhook/twilio"
	)
	svc := NewTwilioService(twiliowhatsapp.NewMockClient(), WithSignatureValidation(token, publicURL))
	form := url.Values{"From": {"+15551234567"}, "Body": {"yes"}, "MessageSid": {"SM1"}}

	rr := httptest.NewRecorder()
	req := webhookRequest(form)
	req.Header.Set("X-Twilio-Signature", "bogus")
	svc.TwilioWebhookHandler(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Errorf("expected 403 for a bad signature, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req = webhookRequest(form)
	req.Header.Set("X-Twilio-Signature", twilioSignature(token, publicURL, form))
	svc.TwilioWebhookHandler(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200 for a valid signature, got %d", rr.Code)
	}
}

func TestTwilioService_SendAndStop(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(mock)

	if err := svc.SendMessage(context.Background(), "whatsapp:+15551234567", "hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if sent := mock.Messages(); len(sent) != 1 || sent[0].To != "15551234567" {
		t.Fatalf("unexpected sent messages %+v", sent)
	}

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := svc.SendMessage(context.Background(), "15551234567", "hello"); err != ErrServiceStopped {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
	rr := httptest.NewRecorder()
	svc.TwilioWebhookHandler(rr, webhookRequest(url.Values{"From": {"+15551234567"}, "Body": {"yes"}}))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 after stop, got %d", rr.Code)
	}
}
