package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"reminder-service/internal/logging"
	"reminder-service/internal/models"
)

func sample() models.Notification {
	return models.Notification{
		ID:          "n-1",
		IssueKey:    "OPS-1",
		RecipientID: "alice",
		Type:        models.ActionDeadlineNotification,
		Urgency:     models.UrgencyHigh,
		Message:     "OPS-1 is due in 2 days",
		NextSteps:   []string{"Confirm the due date"},
	}
}

func prefsWith(ch models.Channel, addr string) models.UserPreferences {
	p := models.DefaultPreferences("alice")
	p.ChannelAddresses = map[models.Channel]string{ch: addr}
	return p
}

func TestFormatFallbacks(t *testing.T) {
	n := sample()
	if got := Title(n); got != "Deadline approaching: OPS-1" {
		t.Errorf("expected fallback title, got %q", got)
	}
	if got := Body(n); !strings.Contains(got, "- Confirm the due date") {
		t.Errorf("expected next steps in body, got %q", got)
	}
	n.Title, n.Body = "Custom", "Generated"
	if Title(n) != "Custom" || Body(n) != "Generated" {
		t.Errorf("expected generated content to win, got %q %q", Title(n), Body(n))
	}

	title, body := Digest([]models.Notification{sample(), sample()})
	if title != "Deadline approaching: 2 items" {
		t.Errorf("expected digest title, got %q", title)
	}
	if strings.Count(body, "OPS-1 is due") != 2 {
		t.Errorf("expected both messages in digest, got %q", body)
	}
}

func TestTelegramDeliver(t *testing.T) {
	var gotChat int64
	var gotText string
	tg := NewTelegram("token", 100, logging.NewNop(), func(_ context.Context, chatID int64, text string) (int, error) {
		gotChat, gotText = chatID, text
		return 42, nil
	})

	prefs := prefsWith(models.ChannelTelegram, "12345")
	if !tg.IsAvailable() || !tg.Validate(sample(), prefs) {
		t.Fatal("expected telegram channel usable")
	}
	res := tg.Deliver(context.Background(), sample(), prefs)
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Error)
	}
	if gotChat != 12345 || !strings.Contains(gotText, "OPS-1") {
		t.Errorf("unexpected send chat=%d text=%q", gotChat, gotText)
	}
	if res.DeliveryID != "12345:42" {
		t.Errorf("expected delivery id 12345:42, got %s", res.DeliveryID)
	}

	tests := []struct {
		name string
		addr string
	}{
		{"missing", ""},
		{"not a number", "@alice"},
		{"zero", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tg.Validate(sample(), prefsWith(models.ChannelTelegram, tt.addr)) {
				t.Errorf("expected %q rejected", tt.addr)
			}
		})
	}

	if NewTelegram("", 1, logging.NewNop(), nil).IsAvailable() {
		t.Error("expected channel without token unavailable")
	}
}

func TestTelegramDeliverFailure(t *testing.T) {
	calls := 0
	tg := NewTelegram("token", 100, logging.NewNop(), func(context.Context, int64, string) (int, error) {
		calls++
		return 0, errors.New("bad gateway")
	})
	res := tg.Deliver(context.Background(), sample(), prefsWith(models.ChannelTelegram, "1"))
	if res.Success || !strings.Contains(res.Error, "bad gateway") {
		t.Errorf("expected failure result, got %+v", res)
	}
	if calls != 3 {
		t.Errorf("expected 3 send attempts, got %d", calls)
	}
}

func TestEmailDeliverBatch(t *testing.T) {
	var gotAddr string
	var gotTo []string
	var gotMsg string
	mail := NewEmail(EmailConfig{SMTPServer: "smtp.local", SMTPPort: 587, Username: "bot@local", Password: "pw", FromName: "Reminders"},
		func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
			gotAddr, gotTo, gotMsg = addr, to, string(msg)
			return nil
		})

	prefs := prefsWith(models.ChannelEmail, "alice@example.com")
	if !mail.IsAvailable() || !mail.Validate(sample(), prefs) {
		t.Fatal("expected email channel usable")
	}
	res := mail.DeliverBatch(context.Background(), []models.Notification{sample(), sample()}, prefs)
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Error)
	}
	if gotAddr != "smtp.local:587" || len(gotTo) != 1 || gotTo[0] != "alice@example.com" {
		t.Errorf("unexpected envelope %s %v", gotAddr, gotTo)
	}
	if !strings.Contains(gotMsg, "Subject: Deadline approaching: 2 items") {
		t.Errorf("expected digest subject, got %q", gotMsg)
	}
	if !strings.Contains(gotMsg, "From: Reminders <bot@local>") {
		t.Errorf("expected named sender, got %q", gotMsg)
	}

	if mail.Validate(sample(), prefsWith(models.ChannelEmail, "alice")) {
		t.Error("expected address without @ rejected")
	}
	if NewEmail(EmailConfig{}, nil).IsAvailable() {
		t.Error("expected unconfigured email unavailable")
	}
}

func TestInboxDeliver(t *testing.T) {
	store := NewMemoryInbox()
	inbox := NewInbox(store)
	ctx := context.Background()

	first := sample()
	second := sample()
	second.ID = "n-2"
	for _, n := range []models.Notification{first, second} {
		if res := inbox.Deliver(ctx, n, models.DefaultPreferences("alice")); !res.Success || res.DeliveryID == "" {
			t.Fatalf("expected inbox delivery, got %+v", res)
		}
	}

	items, _ := store.InboxItems(ctx, "alice", 10)
	if len(items) != 2 || items[0].NotificationID != "n-2" {
		t.Errorf("expected newest first, got %+v", items)
	}
	if items, _ := store.InboxItems(ctx, "alice", 1); len(items) != 1 {
		t.Errorf("expected limit applied, got %d", len(items))
	}
	if items, _ := store.InboxItems(ctx, "bob", 10); items == nil || len(items) != 0 {
		t.Errorf("expected empty non-nil list, got %v", items)
	}
}

func TestInAppDeliver(t *testing.T) {
	hub := NewHub(logging.NewNop())
	upgrader := websocket.Upgrader{}
	registered := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.AddConnection("alice", conn)
		close(registered)
	}))
	defer srv.Close()

	inApp := NewInApp(hub)
	if inApp.Validate(sample(), models.UserPreferences{}) {
		t.Fatal("expected no connection before dialing")
	}

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer client.Close()
	select {
	case <-registered:
	case <-time.After(2 * time.Second):
		t.Fatal("connection never registered")
	}

	if !inApp.Validate(sample(), models.UserPreferences{}) {
		t.Fatal("expected open connection")
	}
	res := inApp.Deliver(context.Background(), sample(), models.UserPreferences{})
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Error)
	}

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var msg inAppMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if msg.NotificationID != "n-1" || msg.Urgency != models.UrgencyHigh {
		t.Errorf("unexpected message %+v", msg)
	}

	bob := sample()
	bob.RecipientID = "bob"
	if res := inApp.Deliver(context.Background(), bob, models.UserPreferences{}); res.Success {
		t.Error("expected failure for user without connections")
	}
}
