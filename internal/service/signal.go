// Package service holds cross-cutting server services that sit between the
// transport and the usecases.
package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/freelancehub/hub"
)

const roomPrefix = "room:"

// SignalService fans realtime frames out across server instances over redis
// pub/sub. Every instance subscribes for its connected sockets; publishes
// reach members of a room no matter which instance they landed on.
type SignalService struct {
	rdb *redis.Client
}

func NewSignalService(redisClient *redis.Client) *SignalService {
	return &SignalService{
		rdb: redisClient,
	}
}

// Publish delivers a frame to every connection joined to the room.
func (s *SignalService) Publish(ctx context.Context, room string, frame hub.Frame) error {
	jsonstr, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	return s.rdb.Publish(ctx, roomPrefix+room, jsonstr).Err()
}

// Realtime pumps frames for one socket connection. Room ids received on join
// widen the subscription; frames for any joined room flow to output. Returns
// when ctx ends.
func (s *SignalService) Realtime(ctx context.Context, join <-chan string, output chan<- hub.Frame) {
	sub := s.rdb.Subscribe(ctx)
	defer sub.Close()

	events := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case room, ok := <-join:
			if !ok {
				return
			}
			if err := sub.Subscribe(ctx, roomPrefix+room); err != nil {
				slog.ErrorContext(ctx, "failed to subscribe room",
					slog.String("room", room),
					slog.String("error", err.Error()),
					slog.String("module", "signal"),
				)
			}
		case msg, ok := <-events:
			if !ok {
				return
			}
			var frame hub.Frame
			if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
				slog.ErrorContext(ctx, "malformed realtime frame",
					slog.String("error", err.Error()),
					slog.String("module", "signal"),
				)
				continue
			}
			select {
			case output <- frame:
			case <-ctx.Done():
				return
			}
		}
	}
}
