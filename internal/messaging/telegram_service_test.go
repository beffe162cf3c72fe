package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestTelegramService(t *testing.T, handler http.Handler) (*TelegramService, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	svc, err := NewTelegramService(
		WithTelegramToken("test-token"),
		WithTelegramAPIBase(server.URL),
	)
	if err != nil {
		t.Fatal(err)
	}
	return svc, server
}

func TestNewTelegramServiceRequiresToken(t *testing.T) {
	if _, err := NewTelegramService(); err == nil {
		t.Error("expected error without token")
	}
}

func TestTelegramValidateRecipient(t *testing.T) {
	svc, _ := newTestTelegramService(t, http.NotFoundHandler())

	if got, err := svc.ValidateAndCanonicalizeRecipient("123456789"); err != nil || got != "123456789" {
		t.Errorf("valid chat id = %q, %v", got, err)
	}
	if got, err := svc.ValidateAndCanonicalizeRecipient("007"); err != nil || got != "7" {
		t.Errorf("leading zeros = %q, %v", got, err)
	}
	for _, bad := range []string{"", "abc", "+989121234567", "12.5"} {
		if _, err := svc.ValidateAndCanonicalizeRecipient(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestTelegramSendChoicesKeyboard(t *testing.T) {
	var mu sync.Mutex
	var captured map[string]any

	svc, _ := newTestTelegramService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if !strings.Contains(r.URL.Path, "bottest-token") {
			t.Errorf("token missing from path %s", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		mu.Lock()
		captured = body
		mu.Unlock()
		w.Write([]byte(`{"ok":true}`))
	}))

	choices := []string{"✅ بله", "❌ خیر"}
	if err := svc.SendChoices(context.Background(), "123", "آیا علائمی دارید؟", choices); err != nil {
		t.Fatalf("SendChoices error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if captured["text"] != "آیا علائمی دارید؟" {
		t.Errorf("text = %v", captured["text"])
	}
	if captured["chat_id"] != float64(123) {
		t.Errorf("chat_id = %v", captured["chat_id"])
	}
	markup, ok := captured["reply_markup"].(map[string]any)
	if !ok {
		t.Fatalf("reply_markup = %v", captured["reply_markup"])
	}
	rows, ok := markup["keyboard"].([]any)
	if !ok || len(rows) != 2 {
		t.Fatalf("keyboard rows = %v", markup["keyboard"])
	}
	// One button per row so long Persian labels stay readable.
	first := rows[0].([]any)[0].(map[string]any)
	if first["text"] != "✅ بله" {
		t.Errorf("first button = %v", first["text"])
	}
	if markup["resize_keyboard"] != true || markup["one_time_keyboard"] != true {
		t.Errorf("keyboard flags = %v", markup)
	}
}

func TestTelegramSendTextRemovesKeyboard(t *testing.T) {
	var mu sync.Mutex
	var captured map[string]any

	svc, _ := newTestTelegramService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		captured = body
		mu.Unlock()
		w.Write([]byte(`{"ok":true}`))
	}))

	if err := svc.SendText(context.Background(), "123", "سلام"); err != nil {
		t.Fatalf("SendText error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	markup, ok := captured["reply_markup"].(map[string]any)
	if !ok || markup["remove_keyboard"] != true {
		t.Errorf("reply_markup = %v", captured["reply_markup"])
	}
	// Parse mode must stay unset; raw medical free text is not valid Markdown.
	if _, present := captured["parse_mode"]; present {
		t.Error("parse_mode unexpectedly set")
	}
}

func TestTelegramSendRejectsEmptyBody(t *testing.T) {
	svc, _ := newTestTelegramService(t, http.NotFoundHandler())
	if err := svc.SendText(context.Background(), "123", ""); err == nil {
		t.Error("expected error for empty body")
	}
}

func TestTelegramSendSurfacesAPIError(t *testing.T) {
	svc, _ := newTestTelegramService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	err := svc.SendText(context.Background(), "123", "سلام")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("error = %v", err)
	}
}

func TestTelegramBotUsername(t *testing.T) {
	svc, _ := newTestTelegramService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/getMe") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"username":"dr_agent_bot"}}`))
	}))

	got, err := svc.BotUsername(context.Background())
	if err != nil {
		t.Fatalf("BotUsername error: %v", err)
	}
	if got != "dr_agent_bot" {
		t.Errorf("username = %q", got)
	}
}

func TestTelegramStopClosesResponsesAfterPollLoop(t *testing.T) {
	// Every poll produces a fresh update so the loop is mid-forward when
	// Stop arrives.
	var mu sync.Mutex
	var nextID int64 = 1
	svc, _ := newTestTelegramService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		id := nextID
		nextID++
		mu.Unlock()
		fmt.Fprintf(w, `{"ok":true,"result":[{"update_id":%d,"message":{"text":"پیام","chat":{"id":123},"date":1700000000}}]}`, id)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := svc.Start(ctx); err != nil {
		t.Fatal(err)
	}

	select {
	case <-svc.Responses():
	case <-time.After(5 * time.Second):
		t.Fatal("no response forwarded before stop")
	}

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop error: %v", err)
	}

	// Stop must only close the channel once the poll loop has exited, so
	// the channel drains to a clean close instead of panicking on a
	// send-to-closed-channel in the loop goroutine.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-svc.Responses():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("responses channel not closed after Stop")
		}
	}
}

func TestTelegramPollLoopForwardsMessages(t *testing.T) {
	var mu sync.Mutex
	var polls int
	var secondOffset float64 = -1

	svc, _ := newTestTelegramService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		polls++
		n := polls
		if n == 2 {
			secondOffset = body["offset"].(float64)
		}
		mu.Unlock()
		if n == 1 {
			w.Write([]byte(`{"ok":true,"result":[
				{"update_id":10,"message":{"text":"سلام","chat":{"id":123},"date":1700000000}},
				{"update_id":11,"message":{"chat":{"id":123},"date":1700000001}},
				{"update_id":12,"message":{"text":"/start","chat":{"id":456},"date":1700000002}}
			]}`))
			return
		}
		w.Write([]byte(`{"ok":true,"result":[]}`))
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := svc.Start(ctx); err != nil {
		t.Fatal(err)
	}

	read := func() (string, string) {
		select {
		case resp := <-svc.Responses():
			return resp.From, resp.Body
		case <-time.After(5 * time.Second):
			t.Fatal("no response forwarded")
			return "", ""
		}
	}

	if from, body := read(); from != "123" || body != "سلام" {
		t.Errorf("first message = %q from %q", body, from)
	}
	// The text-less update 11 is skipped entirely.
	if from, body := read(); from != "456" || body != "/start" {
		t.Errorf("second message = %q from %q", body, from)
	}

	// Wait for the follow-up poll to observe the advanced offset.
	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		off := secondOffset
		mu.Unlock()
		if off >= 0 || time.Now().After(deadline) {
			if off != 13 {
				t.Errorf("second poll offset = %v, want 13", off)
			}
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
}
