package service

import (
	"context"
	"fmt"

	"github.com/trailhub/trailhub-api/internal/model"
	"github.com/trailhub/trailhub-api/internal/repository"
)

// NotificationService exposes a user's inbox.
type NotificationService struct {
	repo *repository.NotificationRepo
}

// NewNotificationService wraps the notification repository.
func NewNotificationService(repo *repository.NotificationRepo) *NotificationService {
	return &NotificationService{repo: repo}
}

// List returns up to limit notifications for the actor, newest first.
func (s *NotificationService) List(ctx context.Context, actor Actor, unreadOnly bool, limit int) ([]model.Notification, error) {
	out, err := s.repo.ListForUser(ctx, actor.UserID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

// MarkRead marks one of the actor's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, actor Actor, id string) error {
	if err := s.repo.MarkRead(ctx, id, actor.UserID, nowUTC()); err != nil {
		return mapRepoErr(err, "mark notification read")
	}
	return nil
}
