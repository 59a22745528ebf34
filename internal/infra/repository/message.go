package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/freelancehub/hub"
	"github.com/freelancehub/hub/internal/infra/database/models"
	"github.com/freelancehub/hub/internal/usecase"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Save persists one message. A retransmit with an already-stored correlation
// id is not an error; the stored row wins so the sender always gets the same
// server identity back.
func (r *MessageRepository) Save(ctx context.Context, room string, msg hub.WireMessage) (hub.WireMessage, error) {
	record := models.Message{
		ID:        msg.ID,
		Room:      room,
		Sender:    msg.Sender,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
	if msg.ClientMessageID != "" {
		record.ClientMessageID = &msg.ClientMessageID
	}

	query := r.db.WithContext(ctx)
	if record.ClientMessageID != nil {
		query = query.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "client_message_id"}},
			DoNothing: true,
		})
	}
	if err := query.Create(&record).Error; err != nil {
		return hub.WireMessage{}, err
	}

	if msg.ClientMessageID != "" {
		var stored models.Message
		err := r.db.WithContext(ctx).
			Where("client_message_id = ?", msg.ClientMessageID).
			Take(&stored).Error
		if err != nil {
			return hub.WireMessage{}, err
		}
		return wireMessage(stored), nil
	}

	return wireMessage(record), nil
}

func (r *MessageRepository) History(ctx context.Context, room string, limit int) ([]hub.WireMessage, error) {
	var records []models.Message
	err := r.db.WithContext(ctx).
		Where("room = ?", room).
		Order("created_at asc, id asc").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	messages := make([]hub.WireMessage, 0, len(records))
	for _, record := range records {
		messages = append(messages, wireMessage(record))
	}
	return messages, nil
}

func wireMessage(record models.Message) hub.WireMessage {
	msg := hub.WireMessage{
		ID:        record.ID,
		Sender:    record.Sender,
		Content:   record.Content,
		CreatedAt: record.CreatedAt,
	}
	if record.ClientMessageID != nil {
		msg.ClientMessageID = *record.ClientMessageID
	}
	return msg
}

var _ usecase.MessageRepository = (*MessageRepository)(nil)
