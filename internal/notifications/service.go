// Package notifications delivers action outcomes and state updates to the
// portal's consumers.
package notifications

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Zorrojurro/project-aarna/internal/notifications/websocket"
)

// Sink receives every notification after it is recorded.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n *Notification) error
}

// Service records notifications, pushes them to WebSocket clients and fans
// them out to sinks. Sink failures are logged and never reach the caller.
type Service struct {
	wsManager *websocket.Manager
	sinks     []Sink
	logger    *zap.Logger

	mu     sync.RWMutex
	recent []Notification
	limit  int
}

// NewService creates a notification service. wsManager may be nil.
func NewService(wsManager *websocket.Manager, logger *zap.Logger, recentLimit int, sinks ...Sink) *Service {
	if recentLimit <= 0 {
		recentLimit = 50
	}
	return &Service{
		wsManager: wsManager,
		sinks:     sinks,
		logger:    logger,
		limit:     recentLimit,
	}
}

// Notify records n and delivers it.
func (s *Service) Notify(ctx context.Context, n Notification) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	s.recent = append(s.recent, n)
	if len(s.recent) > s.limit {
		s.recent = s.recent[len(s.recent)-s.limit:]
	}
	s.mu.Unlock()

	fields := []zap.Field{
		zap.String("operation", n.Operation),
		zap.String("level", string(n.Level)),
		zap.String("message", n.Message),
	}
	if n.Category != "" {
		fields = append(fields, zap.String("category", n.Category))
	}
	switch n.Level {
	case LevelError:
		s.logger.Error("Action failed", fields...)
	case LevelWarning:
		s.logger.Warn("Action warning", fields...)
	default:
		s.logger.Info("Action notice", fields...)
	}

	if s.wsManager != nil {
		if err := s.wsManager.Broadcast(websocket.Message{
			Type:    websocket.MessageTypeNotification,
			Topic:   websocket.MessageTypeNotification,
			Payload: n,
		}); err != nil {
			s.logger.Warn("Failed to push notification", zap.Error(err))
		}
	}

	for _, sink := range s.sinks {
		if err := sink.Deliver(ctx, &n); err != nil {
			s.logger.Warn("Notification sink failed", zap.String("sink", sink.Name()), zap.Error(err))
		}
	}
}

// StateChanged pushes a state payload to WebSocket clients.
func (s *Service) StateChanged(_ context.Context, payload interface{}) {
	if s.wsManager == nil {
		return
	}
	if err := s.wsManager.Broadcast(websocket.Message{
		Type:    websocket.MessageTypeState,
		Topic:   websocket.MessageTypeState,
		Payload: payload,
	}); err != nil {
		s.logger.Warn("Failed to push state", zap.Error(err))
	}
}

// Recent returns up to limit notifications, newest first.
func (s *Service) Recent(limit int) []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.recent) {
		limit = len(s.recent)
	}
	out := make([]Notification, 0, limit)
	for i := len(s.recent) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.recent[i])
	}
	return out
}
