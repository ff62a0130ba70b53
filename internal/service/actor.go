package service

import (
	"context"
	"strings"
	"time"

	"github.com/trailhub/trailhub-api/internal/model"
)

// Actor is the authenticated caller.  The zero Actor is an anonymous
// visitor.
type Actor struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the actor has the ADMIN role.
func (a Actor) IsAdmin() bool { return a.Role == model.RoleAdmin }

// canManage reports whether the actor may review requests and edit the
// event: its organizer or any admin.
func (a Actor) canManage(e *model.Event) bool {
	return a.IsAdmin() || (a.UserID != "" && a.UserID == e.OrganizerID)
}

// Notifier records in-app notifications.  Notifications are bookkeeping:
// a failure is logged, never returned to the caller.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

func nowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func optionalNote(note string) *string {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil
	}
	return &note
}
