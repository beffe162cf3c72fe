package messaging

import (
	"context"
	"strings"
	"testing"

	"github.com/dragent-dev/dragent/internal/whatsapp"
)

func TestWhatsAppServiceImplementsService(t *testing.T) {
	var _ Service = (*WhatsAppService)(nil)
}

func TestWhatsAppValidateRecipient(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+989121234567", "989121234567", false},
		{"989121234567", "989121234567", false},
		{" +14155550123 ", "14155550123", false},
		{"0912123", "", true},
		{"+0912123456", "", true},
		{"abc", "", true},
		{"", "", true},
		{"+1", "", true},
	}
	for _, tt := range tests {
		got, err := svc.ValidateAndCanonicalizeRecipient(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ValidateAndCanonicalizeRecipient(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ValidateAndCanonicalizeRecipient(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ValidateAndCanonicalizeRecipient(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWhatsAppSendText(t *testing.T) {
	mock := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mock)

	if err := svc.SendText(context.Background(), "989121234567", "سلام"); err != nil {
		t.Fatalf("SendText error: %v", err)
	}
	sent := mock.SentMessages()
	if len(sent) != 1 || sent[0].To != "989121234567" || sent[0].Body != "سلام" {
		t.Errorf("sent = %+v", sent)
	}
}

func TestWhatsAppSendChoicesNumbersLines(t *testing.T) {
	mock := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mock)

	err := svc.SendChoices(context.Background(), "989121234567", "جنسیت خود را انتخاب کنید:", []string{"مرد", "زن"})
	if err != nil {
		t.Fatalf("SendChoices error: %v", err)
	}

	sent := mock.SentMessages()
	if len(sent) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(sent))
	}
	body := sent[0].Body
	for _, want := range []string{"جنسیت خود را انتخاب کنید:", "\n1. مرد", "\n2. زن"} {
		if !strings.Contains(body, want) {
			t.Errorf("rendered body missing %q:\n%s", want, body)
		}
	}
}
