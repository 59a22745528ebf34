package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/freelancehub/hub"
)

type mockMessageRepo struct {
	saved map[string][]hub.WireMessage
}

func (m *mockMessageRepo) Save(ctx context.Context, room string, msg hub.WireMessage) (hub.WireMessage, error) {
	if m.saved == nil {
		m.saved = map[string][]hub.WireMessage{}
	}
	m.saved[room] = append(m.saved[room], msg)
	return msg, nil
}

func (m *mockMessageRepo) History(ctx context.Context, room string, limit int) ([]hub.WireMessage, error) {
	msgs := m.saved[room]
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func TestChatLogAppendAssignsServerIdentity(t *testing.T) {
	repo := &mockMessageRepo{}
	uc := NewChatLogUsecase(repo)

	saved, err := uc.Append(context.Background(), "alice", hub.WireMessage{
		ClientMessageID: "cmid-1",
		Sender:          "alice",
		Content:         "hello",
	})
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if saved.ID == "" {
		t.Fatalf("expected a server-assigned id")
	}
	if saved.ClientMessageID != "cmid-1" {
		t.Fatalf("correlation id must be preserved, got %q", saved.ClientMessageID)
	}
	if saved.CreatedAt.IsZero() {
		t.Fatalf("expected a server timestamp")
	}
	if len(repo.saved["alice"]) != 1 {
		t.Fatalf("expected the message stored in the alice room")
	}
}

func TestChatLogAppendKeepsClientTimestamp(t *testing.T) {
	repo := &mockMessageRepo{}
	uc := NewChatLogUsecase(repo)

	sent := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	saved, err := uc.Append(context.Background(), "alice", hub.WireMessage{
		Sender:    "alice",
		Content:   "hello",
		CreatedAt: sent,
	})
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if !saved.CreatedAt.Equal(sent) {
		t.Fatalf("client timestamp must survive, got %v", saved.CreatedAt)
	}
}

func TestChatLogAppendRejectsInvalidMessages(t *testing.T) {
	uc := NewChatLogUsecase(&mockMessageRepo{})

	cases := []struct {
		name string
		room string
		msg  hub.WireMessage
	}{
		{"missing room", "", hub.WireMessage{Sender: "alice", Content: "hi"}},
		{"blank content", "alice", hub.WireMessage{Sender: "alice", Content: "   "}},
		{"missing sender", "alice", hub.WireMessage{Content: "hi"}},
	}
	for _, tc := range cases {
		if _, err := uc.Append(context.Background(), tc.room, tc.msg); err == nil {
			t.Errorf("%s: expected an error", tc.name)
		}
	}
}

func TestChatLogHistoryClampsLimit(t *testing.T) {
	repo := &mockMessageRepo{}
	uc := NewChatLogUsecase(repo)
	for i := 0; i < 3; i++ {
		if _, err := uc.Append(context.Background(), "alice", hub.WireMessage{Sender: "alice", Content: "m"}); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	msgs, err := uc.History(context.Background(), "alice", 2)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected the limit respected, got %d messages", len(msgs))
	}

	msgs, err = uc.History(context.Background(), "alice", -5)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("a non-positive limit falls back to the default, got %d", len(msgs))
	}
}
