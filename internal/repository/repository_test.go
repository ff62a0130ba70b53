package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/trailhub/trailhub-api/internal/database/sqlitetest"
	"github.com/trailhub/trailhub-api/internal/model"
	"github.com/trailhub/trailhub-api/internal/repository"
)

func seedUser(t *testing.T, db *sql.DB, email string) model.User {
	t.Helper()
	u, err := repository.NewUserRepo(db).Create(context.Background(), email, "password1", "Seed", model.RoleOrganizer, 4)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func seedEvent(t *testing.T, repo *repository.EventRepo, organizerID, title string, capacity int, status model.EventStatus, startsIn time.Duration) *model.Event {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	e := &model.Event{
		ID:          uuid.NewString(),
		OrganizerID: organizerID,
		Title:       title,
		Activity:    model.ActivityHike,
		Location:    "Trailhead",
		StartsAt:    now.Add(startsIn),
		EndsAt:      now.Add(startsIn + 3*time.Hour),
		Capacity:    capacity,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := repo.Create(context.Background(), e); err != nil {
		t.Fatalf("create event: %v", err)
	}
	return e
}

func TestClaimSeatStopsAtCapacity(t *testing.T) {
	db := sqlitetest.Open(t)
	ctx := context.Background()
	org := seedUser(t, db, "org@example.com")
	events := repository.NewEventRepo(db)
	store := repository.NewStore(db)
	ev := seedEvent(t, events, org.ID, "Two places", 2, model.EventPublished, 24*time.Hour)

	claim := func() error {
		return store.WithTx(ctx, func(tx *sql.Tx) error {
			return events.ClaimSeatTx(ctx, tx, ev.ID, time.Now())
		})
	}
	for i := 0; i < 2; i++ {
		if err := claim(); err != nil {
			t.Fatalf("claim %d: %v", i+1, err)
		}
	}
	if err := claim(); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("claim past capacity: got %v", err)
	}

	if err := events.UpdateCapacity(ctx, ev.ID, 1, time.Now()); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("capacity below count: got %v", err)
	}
	if err := events.UpdateCapacity(ctx, ev.ID, 5, time.Now()); err != nil {
		t.Fatalf("raise capacity: %v", err)
	}

	if err := store.WithTx(ctx, func(tx *sql.Tx) error {
		return events.ReleaseSeatTx(ctx, tx, ev.ID, time.Now())
	}); err != nil {
		t.Fatalf("release: %v", err)
	}
	got, err := events.GetByID(ctx, ev.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ParticipantCount != 1 || got.Capacity != 5 {
		t.Fatalf("event = %+v", got)
	}
}

func TestClaimSeatRequiresPublished(t *testing.T) {
	db := sqlitetest.Open(t)
	ctx := context.Background()
	org := seedUser(t, db, "org@example.com")
	events := repository.NewEventRepo(db)
	ev := seedEvent(t, events, org.ID, "Draft", 3, model.EventDraft, 24*time.Hour)

	err := repository.NewStore(db).WithTx(ctx, func(tx *sql.Tx) error {
		return events.ClaimSeatTx(ctx, tx, ev.ID, time.Now())
	})
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("claim on draft: got %v", err)
	}

	from := []model.EventStatus{model.EventDraft}
	if err := events.TransitionStatus(ctx, ev.ID, from, model.EventPublished, time.Now()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := events.TransitionStatus(ctx, ev.ID, from, model.EventPublished, time.Now()); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("publish twice: got %v", err)
	}
	if _, err := events.GetByID(ctx, "nope"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("missing event: got %v", err)
	}
}

func TestLockPublishedTxSeesCurrentStatus(t *testing.T) {
	db := sqlitetest.Open(t)
	ctx := context.Background()
	org := seedUser(t, db, "org@example.com")
	events := repository.NewEventRepo(db)
	store := repository.NewStore(db)
	ev := seedEvent(t, events, org.ID, "Lockable", 2, model.EventPublished, 24*time.Hour)

	lock := func() error {
		return store.WithTx(ctx, func(tx *sql.Tx) error {
			return events.LockPublishedTx(ctx, tx, ev.ID)
		})
	}
	if err := lock(); err != nil {
		t.Fatalf("lock published: %v", err)
	}
	if err := events.TransitionStatus(ctx, ev.ID, []model.EventStatus{model.EventPublished}, model.EventSuspended, time.Now()); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if err := lock(); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("lock suspended: got %v, want ErrConflict", err)
	}
	got, err := events.GetByID(ctx, ev.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.EventSuspended {
		t.Fatalf("status = %s after lock", got.Status)
	}
}

// The guard decides on the row as it is when the UPDATE runs; a copy of the
// event read earlier that still shows room does not let a claim through.
func TestClaimSeatIgnoresStaleRead(t *testing.T) {
	db := sqlitetest.Open(t)
	ctx := context.Background()
	org := seedUser(t, db, "org@example.com")
	events := repository.NewEventRepo(db)
	store := repository.NewStore(db)
	ev := seedEvent(t, events, org.ID, "Last place", 1, model.EventPublished, 24*time.Hour)

	stale, err := events.GetByID(ctx, ev.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := store.WithTx(ctx, func(tx *sql.Tx) error {
		return events.ClaimSeatTx(ctx, tx, ev.ID, time.Now())
	}); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	if stale.Remaining() != 1 {
		t.Fatalf("stale remaining = %d, want 1", stale.Remaining())
	}
	err = store.WithTx(ctx, func(tx *sql.Tx) error {
		return events.ClaimSeatTx(ctx, tx, stale.ID, time.Now())
	})
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("claim with stale read: got %v, want ErrConflict", err)
	}
	got, _ := events.GetByID(ctx, ev.ID)
	if got.ParticipantCount != 1 {
		t.Fatalf("participant_count = %d, want 1", got.ParticipantCount)
	}
}

func TestWithTxRollsBack(t *testing.T) {
	db := sqlitetest.Open(t)
	ctx := context.Background()
	org := seedUser(t, db, "org@example.com")
	events := repository.NewEventRepo(db)
	ev := seedEvent(t, events, org.ID, "Rollback", 3, model.EventPublished, 24*time.Hour)

	boom := errors.New("boom")
	err := repository.NewStore(db).WithTx(ctx, func(tx *sql.Tx) error {
		if err := events.ClaimSeatTx(ctx, tx, ev.ID, time.Now()); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
	got, _ := events.GetByID(ctx, ev.ID)
	if got.ParticipantCount != 0 {
		t.Fatalf("participant_count = %d after rollback", got.ParticipantCount)
	}
	n, err := repository.NewParticipantRepo(db).CountByEvent(ctx, ev.ID)
	if err != nil || n != 0 {
		t.Fatalf("participants = %d, %v", n, err)
	}
}

func TestSearchFiltersAndPages(t *testing.T) {
	db := sqlitetest.Open(t)
	ctx := context.Background()
	org := seedUser(t, db, "org@example.com")
	events := repository.NewEventRepo(db)
	for i := 0; i < 5; i++ {
		seedEvent(t, events, org.ID, fmt.Sprintf("Canyon loop %d", i), 4, model.EventPublished, time.Duration(i+1)*time.Hour)
	}
	seedEvent(t, events, org.ID, "Canyon draft", 4, model.EventDraft, time.Hour)
	seedEvent(t, events, org.ID, "Canyon finished", 4, model.EventPublished, -48*time.Hour)

	now := time.Now()
	page, total, err := events.Search(ctx, repository.EventSearchQuery{Text: "canyon", Page: 2, PageSize: 2}, now)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 5 || len(page) != 2 {
		t.Fatalf("total=%d len=%d, want 5 and 2", total, len(page))
	}
	if page[0].Title != "Canyon loop 2" {
		t.Fatalf("page 2 starts with %q", page[0].Title)
	}

	far, total, err := events.Search(ctx, repository.EventSearchQuery{Text: "canyon", Page: math.MaxInt, PageSize: 100}, now)
	if err != nil {
		t.Fatalf("search huge page: %v", err)
	}
	if total != 5 || len(far) != 0 {
		t.Fatalf("huge page: total=%d len=%d", total, len(far))
	}

	_, total, err = events.Search(ctx, repository.EventSearchQuery{Activity: model.ActivityCamp}, now)
	if err != nil || total != 0 {
		t.Fatalf("activity filter: total=%d err=%v", total, err)
	}
}

func TestRefreshTokenLifecycle(t *testing.T) {
	db := sqlitetest.Open(t)
	ctx := context.Background()
	u := seedUser(t, db, "member@example.com")
	tokens := repository.NewTokenRepo(db)

	if err := tokens.StoreRefresh(ctx, u.ID, "live", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := tokens.StoreRefresh(ctx, u.ID, "stale", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("store: %v", err)
	}
	if id, err := tokens.ValidateRefresh(ctx, "live"); err != nil || id != u.ID {
		t.Fatalf("validate live: %q %v", id, err)
	}
	if _, err := tokens.ValidateRefresh(ctx, "stale"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("validate expired: got %v", err)
	}
	if err := tokens.RevokeAllForUser(ctx, u.ID); err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if _, err := tokens.ValidateRefresh(ctx, "live"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("validate revoked: got %v", err)
	}
}

func TestDuplicateEmail(t *testing.T) {
	db := sqlitetest.Open(t)
	seedUser(t, db, "dup@example.com")
	_, err := repository.NewUserRepo(db).Create(context.Background(), " DUP@example.com", "password1", "Again", model.RoleMember, 4)
	if !errors.Is(err, repository.ErrEmailExists) {
		t.Fatalf("got %v, want ErrEmailExists", err)
	}
}
