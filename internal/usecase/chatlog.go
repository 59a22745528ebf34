package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/freelancehub/hub"
)

const defaultHistoryLimit = 200

// ChatLogUsecase persists chat messages and serves the history snapshot.
type ChatLogUsecase struct {
	repo MessageRepository
}

func NewChatLogUsecase(repo MessageRepository) *ChatLogUsecase {
	return &ChatLogUsecase{repo: repo}
}

// Append stores an incoming message, assigning the server-side identifier and
// stamping the receive time when the client supplied none. The client's
// correlation id is preserved so the confirmation echo can carry it back.
func (uc *ChatLogUsecase) Append(ctx context.Context, room string, msg hub.WireMessage) (hub.WireMessage, error) {
	if room == "" {
		return hub.WireMessage{}, fmt.Errorf("room is required")
	}
	if strings.TrimSpace(msg.Content) == "" {
		return hub.WireMessage{}, fmt.Errorf("content is required")
	}
	if msg.Sender == "" {
		return hub.WireMessage{}, fmt.Errorf("sender is required")
	}
	msg.ID = hub.NewID()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	return uc.repo.Save(ctx, room, msg)
}

// History returns the snapshot in ascending send order. An empty history is a
// valid response, not an error.
func (uc *ChatLogUsecase) History(ctx context.Context, identityID string, limit int) ([]hub.WireMessage, error) {
	if limit <= 0 || limit > defaultHistoryLimit {
		limit = defaultHistoryLimit
	}
	return uc.repo.History(ctx, identityID, limit)
}
