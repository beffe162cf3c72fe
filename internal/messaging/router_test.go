package messaging

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/dragent-dev/dragent/internal/models"
)

// mockService is a test transport: incoming responses are pushed onto the
// channel by the test, sends are recorded.
type mockService struct {
	mu        sync.Mutex
	sent      []string
	responses chan models.Response
}

func newMockService() *mockService {
	return &mockService{responses: make(chan models.Response, DefaultChannelBufferSize)}
}

func (m *mockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if _, err := strconv.ParseInt(recipient, 10, 64); err != nil {
		return "", fmt.Errorf("invalid recipient %q", recipient)
	}
	return recipient, nil
}

func (m *mockService) SendText(ctx context.Context, to string, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, body)
	return nil
}

func (m *mockService) SendChoices(ctx context.Context, to string, body string, choices []string) error {
	return m.SendText(ctx, to, body)
}

func (m *mockService) Start(ctx context.Context) error { return nil }
func (m *mockService) Stop() error                     { return nil }

func (m *mockService) Responses() <-chan models.Response { return m.responses }

// recordingHandler captures the order messages arrive per user.
type recordingHandler struct {
	mu       sync.Mutex
	received map[string][]string
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{received: make(map[string][]string)}
}

func (h *recordingHandler) HandleMessage(ctx context.Context, from, body string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.received[from] = append(h.received[from], body)
	return nil
}

func (h *recordingHandler) messages(from string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.received[from]))
	copy(out, h.received[from])
	return out
}

func TestRouterPreservesPerUserOrder(t *testing.T) {
	svc := newMockService()
	handler := newRecordingHandler()
	router := NewRouter(svc, handler)

	const perUser = 20
	for i := 0; i < perUser; i++ {
		svc.responses <- models.Response{From: "111", Body: fmt.Sprintf("a-%d", i)}
		svc.responses <- models.Response{From: "222", Body: fmt.Sprintf("b-%d", i)}
	}
	close(svc.responses)

	done := make(chan struct{})
	go func() {
		router.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("router did not drain after channel close")
	}

	for user, prefix := range map[string]string{"111": "a", "222": "b"} {
		got := handler.messages(user)
		if len(got) != perUser {
			t.Fatalf("user %s received %d messages, want %d", user, len(got), perUser)
		}
		for i, body := range got {
			if want := fmt.Sprintf("%s-%d", prefix, i); body != want {
				t.Errorf("user %s message %d = %q, want %q", user, i, body, want)
			}
		}
	}
}

func TestRouterDropsInvalidSender(t *testing.T) {
	svc := newMockService()
	handler := newRecordingHandler()
	router := NewRouter(svc, handler)

	svc.responses <- models.Response{From: "not-a-chat-id", Body: "hello"}
	svc.responses <- models.Response{From: "333", Body: "valid"}
	close(svc.responses)

	router.Run(context.Background())

	if got := handler.messages("not-a-chat-id"); len(got) != 0 {
		t.Errorf("invalid sender was dispatched: %v", got)
	}
	if got := handler.messages("333"); len(got) != 1 || got[0] != "valid" {
		t.Errorf("valid sender messages = %v", got)
	}
}

func TestRouterStopsOnContextCancel(t *testing.T) {
	svc := newMockService()
	router := NewRouter(svc, newRecordingHandler())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		router.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("router did not stop on context cancellation")
	}
}
