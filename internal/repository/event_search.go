package repository

import (
	"context"
	"strings"
	"time"

	"github.com/trailhub/trailhub-api/internal/model"
)

// MaxSearchPage bounds the page number so the OFFSET stays well inside int
// range for any page size.
const MaxSearchPage = 100000

// EventSearchQuery defines filters & pagination for the public event
// listing.  Only published events are ever returned.
type EventSearchQuery struct {
	Text     string
	Activity model.Activity
	Location string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// Search returns one page of published events ordered by start time plus
// the total number of matches.  Without From, events that already ended are
// hidden.
func (r *EventRepo) Search(ctx context.Context, q EventSearchQuery, now time.Time) ([]model.Event, int64, error) {
	where := []string{"status = ?"}
	args := []any{string(model.EventPublished)}

	if q.From != nil {
		where = append(where, "starts_at >= ?")
		args = append(args, toMillis(*q.From))
	} else {
		where = append(where, "ends_at >= ?")
		args = append(args, toMillis(now))
	}
	if q.To != nil {
		where = append(where, "starts_at <= ?")
		args = append(args, toMillis(*q.To))
	}
	if q.Text != "" {
		where = append(where, "(LOWER(title) LIKE ? OR LOWER(description) LIKE ?)")
		like := "%" + strings.ToLower(q.Text) + "%"
		args = append(args, like, like)
	}
	if q.Activity != "" {
		where = append(where, "activity = ?")
		args = append(args, string(q.Activity))
	}
	if q.Location != "" {
		where = append(where, "LOWER(location) LIKE ?")
		args = append(args, "%"+strings.ToLower(q.Location)+"%")
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, size := q.Page, q.PageSize
	if page < 1 {
		page = 1
	}
	if page > MaxSearchPage {
		page = MaxSearchPage
	}
	if size < 1 {
		size = 20
	}
	dataSQL := `SELECT ` + eventColumns + ` FROM events WHERE ` + cond + `
		ORDER BY starts_at ASC, id ASC
		LIMIT ? OFFSET ?`
	argsData := append(append([]any{}, args...), size, (page-1)*size)

	rows, err := r.db.QueryContext(ctx, dataSQL, argsData...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.Event, 0, size)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
