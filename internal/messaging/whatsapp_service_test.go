package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/ShiftGuide/internal/models"
	"github.com/BTreeMap/ShiftGuide/internal/whatsapp"
)

// Ensure WhatsAppService implements Service interface
func TestWhatsAppService_ImplementsService(t *testing.T) {
	var _ Service = (*WhatsAppService)(nil)
	var _ Service = (*TwilioService)(nil)
}

func TestWhatsAppService_SendMessageCanonicalizes(t *testing.T) {
	mockClient := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mockClient)

	if err := svc.SendMessage(context.Background(), "+1 (555) 123-4567", "hello"); err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}
	sent := mockClient.Messages()
	if len(sent) != 1 || sent[0].To != "15551234567" {
		t.Fatalf("unexpected sent messages: %+v", sent)
	}

	if err := svc.SendMessage(context.Background(), "12", "hello"); err == nil {
		t.Error("expected an error for a short number")
	}
}

func TestWhatsAppService_ForwardsInbound(t *testing.T) {
	mockClient := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mockClient)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	mockClient.Deliver(models.InboundMessage{ID: "m1", From: "15551234567", Body: "yes"})
	select {
	case msg := <-svc.Inbound():
		if msg.ID != "m1" || msg.Body != "yes" {
			t.Errorf("unexpected message %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("inbound message not forwarded")
	}
}

func TestWhatsAppService_StartStop(t *testing.T) {
	mockClient := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mockClient)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("second Stop returned error: %v", err)
	}

	msg, ok := <-svc.Inbound()
	if ok {
		t.Errorf("expected inbound channel closed, got value %v", msg)
	}
	// Messages arriving after Stop are dropped, not sent on a closed channel.
	mockClient.Deliver(models.InboundMessage{ID: "late", From: "15551234567", Body: "hi"})

	if err := svc.SendMessage(context.Background(), "15551234567", "hi"); !errors.Is(err, ErrServiceStopped) {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
}
