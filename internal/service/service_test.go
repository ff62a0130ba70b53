package service_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/trailhub/trailhub-api/internal/database/sqlitetest"
	"github.com/trailhub/trailhub-api/internal/model"
	"github.com/trailhub/trailhub-api/internal/queue"
	"github.com/trailhub/trailhub-api/internal/repository"
	"github.com/trailhub/trailhub-api/internal/service"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.ActivityEvent
}

func (p *recordingPublisher) PublishActivity(_ context.Context, ev queue.ActivityEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Kind
	}
	return out
}

type fixture struct {
	t      *testing.T
	db     *sql.DB
	users  *repository.UserRepo
	events *service.EventService
	join   *service.JoinService
	inbox  *service.NotificationService
	pub    *recordingPublisher

	organizer service.Actor
	userSeq   int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := sqlitetest.Open(t)
	eventRepo := repository.NewEventRepo(db)
	notifications := repository.NewNotificationRepo(db)
	pub := &recordingPublisher{}
	f := &fixture{
		t:      t,
		db:     db,
		users:  repository.NewUserRepo(db),
		events: service.NewEventService(eventRepo),
		join: service.NewJoinService(repository.NewStore(db), eventRepo, repository.NewJoinRequestRepo(db),
			repository.NewParticipantRepo(db), notifications, pub),
		inbox: service.NewNotificationService(notifications),
		pub:   pub,
	}
	f.organizer = f.user(model.RoleOrganizer)
	return f
}

func (f *fixture) user(role string) service.Actor {
	f.t.Helper()
	f.userSeq++
	u, err := f.users.Create(context.Background(), fmt.Sprintf("user%d@example.com", f.userSeq),
		"correct horse", fmt.Sprintf("User %d", f.userSeq), role, 4)
	if err != nil {
		f.t.Fatalf("create user: %v", err)
	}
	return service.Actor{UserID: u.ID, Role: u.Role}
}

func (f *fixture) draftEvent(capacity int) *model.Event {
	f.t.Helper()
	start := time.Now().Add(48 * time.Hour)
	e, err := f.events.Create(context.Background(), f.organizer, service.EventInput{
		Title:    "Ridge traverse",
		Activity: model.ActivityHike,
		Location: "Cascades",
		StartsAt: start,
		EndsAt:   start.Add(6 * time.Hour),
		Capacity: capacity,
	})
	if err != nil {
		f.t.Fatalf("create event: %v", err)
	}
	return e
}

func (f *fixture) publishedEvent(capacity int) *model.Event {
	f.t.Helper()
	e := f.draftEvent(capacity)
	e, err := f.events.Publish(context.Background(), e.ID, f.organizer)
	if err != nil {
		f.t.Fatalf("publish: %v", err)
	}
	return e
}

func (f *fixture) request(eventID string, who service.Actor) *model.JoinRequest {
	f.t.Helper()
	jr, err := f.join.RequestToJoin(context.Background(), eventID, who, "count me in")
	if err != nil {
		f.t.Fatalf("request to join: %v", err)
	}
	return jr
}

// assertCounts checks participant_count against the participants table and
// the capacity ceiling.
func (f *fixture) assertCounts(eventID string, want int) {
	f.t.Helper()
	var count, capacity, rows int
	if err := f.db.QueryRow(`SELECT participant_count, capacity FROM events WHERE id = ?`, eventID).Scan(&count, &capacity); err != nil {
		f.t.Fatalf("read event: %v", err)
	}
	if err := f.db.QueryRow(`SELECT COUNT(*) FROM participants WHERE event_id = ?`, eventID).Scan(&rows); err != nil {
		f.t.Fatalf("count participants: %v", err)
	}
	if count != rows {
		f.t.Fatalf("participant_count=%d but %d participant rows", count, rows)
	}
	if count > capacity {
		f.t.Fatalf("participant_count=%d exceeds capacity=%d", count, capacity)
	}
	if count != want {
		f.t.Fatalf("participant_count=%d, want %d", count, want)
	}
}

func TestApproveUpToCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.publishedEvent(2)

	r1 := f.request(ev.ID, f.user(model.RoleMember))
	r2 := f.request(ev.ID, f.user(model.RoleMember))
	r3 := f.request(ev.ID, f.user(model.RoleMember))

	if _, err := f.join.Approve(ctx, r1.ID, f.organizer, ""); err != nil {
		t.Fatalf("approve r1: %v", err)
	}
	if _, err := f.join.Approve(ctx, r2.ID, f.organizer, "see you there"); err != nil {
		t.Fatalf("approve r2: %v", err)
	}
	_, err := f.join.Approve(ctx, r3.ID, f.organizer, "")
	if !errors.Is(err, service.ErrCapacityExceeded) {
		t.Fatalf("approve r3: got %v, want ErrCapacityExceeded", err)
	}
	f.assertCounts(ev.ID, 2)

	reqs, err := f.join.ListForEvent(ctx, ev.ID, f.organizer, "pending")
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(reqs) != 1 || reqs[0].ID != r3.ID {
		t.Fatalf("pending requests = %+v, want only r3", reqs)
	}
}

// The test database runs on one connection, so the two approvals queue at
// transaction level; this checks the outcome and the counters, while
// TestClaimSeatIgnoresStaleRead in the repository package covers the guard
// refusing a claim made from an outdated read.
func TestApproveConcurrentSinglePlace(t *testing.T) {
	f := newFixture(t)
	ev := f.publishedEvent(1)
	a := f.request(ev.ID, f.user(model.RoleMember))
	b := f.request(ev.ID, f.user(model.RoleMember))

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, 2)
	)
	for i, id := range []string{a.ID, b.ID} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			<-start
			_, errs[i] = f.join.Approve(context.Background(), id, f.organizer, "")
		}(i, id)
	}
	close(start)
	wg.Wait()

	var ok, full int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, service.ErrCapacityExceeded):
			full++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || full != 1 {
		t.Fatalf("got %d approvals and %d capacity errors, want 1 and 1", ok, full)
	}
	f.assertCounts(ev.ID, 1)
}

func TestApproveDraftEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.publishedEvent(5)
	jr := f.request(ev.ID, f.user(model.RoleMember))

	// Cancelled after the request was filed.
	if _, err := f.events.Cancel(ctx, ev.ID, f.organizer); err != nil {
		t.Fatalf("cancel event: %v", err)
	}
	if _, err := f.join.Approve(ctx, jr.ID, f.organizer, ""); !errors.Is(err, service.ErrEventNotPublishable) {
		t.Fatalf("approve on cancelled event: got %v", err)
	}

	draft := f.draftEvent(5)
	if _, err := f.join.RequestToJoin(ctx, draft.ID, f.user(model.RoleMember), ""); !errors.Is(err, service.ErrEventNotPublishable) {
		t.Fatalf("request on draft event: got %v", err)
	}
	f.assertCounts(ev.ID, 0)
}

func TestApproveSuspendedEventDespiteRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(model.RoleAdmin)
	ev := f.publishedEvent(3)
	jr := f.request(ev.ID, f.user(model.RoleMember))

	if _, err := f.events.Suspend(ctx, ev.ID, admin); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if _, err := f.join.Approve(ctx, jr.ID, f.organizer, ""); !errors.Is(err, service.ErrEventNotPublishable) {
		t.Fatalf("approve on suspended event: got %v", err)
	}
	if _, err := f.events.Reinstate(ctx, ev.ID, admin); err != nil {
		t.Fatalf("reinstate: %v", err)
	}
	if _, err := f.join.Approve(ctx, jr.ID, f.organizer, ""); err != nil {
		t.Fatalf("approve after reinstate: %v", err)
	}
	f.assertCounts(ev.ID, 1)
}

func TestDecisionsAreFinal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.publishedEvent(3)
	rejected := f.request(ev.ID, f.user(model.RoleMember))
	approved := f.request(ev.ID, f.user(model.RoleMember))

	jr, err := f.join.Reject(ctx, rejected.ID, f.organizer, "trip is too advanced")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if jr.Status != model.JoinRequestRejected || jr.ReviewNote == nil || *jr.ReviewNote != "trip is too advanced" {
		t.Fatalf("rejected request = %+v", jr)
	}
	if _, err := f.join.Reject(ctx, rejected.ID, f.organizer, ""); !errors.Is(err, service.ErrRequestFinalized) {
		t.Fatalf("second reject: got %v", err)
	}
	if _, err := f.join.Approve(ctx, rejected.ID, f.organizer, ""); !errors.Is(err, service.ErrRequestFinalized) {
		t.Fatalf("approve rejected: got %v", err)
	}

	if _, err := f.join.Approve(ctx, approved.ID, f.organizer, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.join.Approve(ctx, approved.ID, f.organizer, ""); !errors.Is(err, service.ErrRequestFinalized) {
		t.Fatalf("re-approve: got %v", err)
	}
	if _, err := f.join.Reject(ctx, approved.ID, f.organizer, ""); !errors.Is(err, service.ErrRequestFinalized) {
		t.Fatalf("reject approved: got %v", err)
	}
	f.assertCounts(ev.ID, 1)
}

func TestApproveErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.publishedEvent(3)
	jr := f.request(ev.ID, f.user(model.RoleMember))

	if _, err := f.join.Approve(ctx, "missing", f.organizer, ""); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("unknown request: got %v", err)
	}
	stranger := f.user(model.RoleOrganizer)
	if _, err := f.join.Approve(ctx, jr.ID, stranger, ""); !errors.Is(err, service.ErrForbidden) {
		t.Fatalf("foreign organizer: got %v", err)
	}
	admin := f.user(model.RoleAdmin)
	if _, err := f.join.Approve(ctx, jr.ID, admin, ""); err != nil {
		t.Fatalf("admin approve: %v", err)
	}
	f.assertCounts(ev.ID, 1)
}

func TestCancelFreesCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.publishedEvent(1)
	alice := f.user(model.RoleMember)
	bob := f.user(model.RoleMember)
	a := f.request(ev.ID, alice)
	b := f.request(ev.ID, bob)

	if _, err := f.join.Approve(ctx, a.ID, f.organizer, ""); err != nil {
		t.Fatalf("approve a: %v", err)
	}
	if _, err := f.join.Approve(ctx, b.ID, f.organizer, ""); !errors.Is(err, service.ErrCapacityExceeded) {
		t.Fatalf("approve b while full: got %v", err)
	}
	if _, err := f.join.Cancel(ctx, a.ID, bob); !errors.Is(err, service.ErrForbidden) {
		t.Fatalf("cancel someone else's request: got %v", err)
	}
	jr, err := f.join.Cancel(ctx, a.ID, alice)
	if err != nil {
		t.Fatalf("cancel a: %v", err)
	}
	if jr.Status != model.JoinRequestCancelled {
		t.Fatalf("status = %s", jr.Status)
	}
	f.assertCounts(ev.ID, 0)

	if _, err := f.join.Approve(ctx, b.ID, f.organizer, ""); err != nil {
		t.Fatalf("approve b after cancel: %v", err)
	}
	f.assertCounts(ev.ID, 1)
	if _, err := f.join.Cancel(ctx, a.ID, alice); !errors.Is(err, service.ErrRequestFinalized) {
		t.Fatalf("cancel twice: got %v", err)
	}

	want := []string{queue.ActivityApproved, queue.ActivityCancelled, queue.ActivityApproved}
	got := f.pub.kinds()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("published %v, want %v", got, want)
	}
}

func TestOneActiveRequestPerUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.publishedEvent(3)
	member := f.user(model.RoleMember)

	first := f.request(ev.ID, member)
	if _, err := f.join.RequestToJoin(ctx, ev.ID, member, "again"); !errors.Is(err, service.ErrAlreadyRequested) {
		t.Fatalf("duplicate request: got %v", err)
	}
	if _, err := f.join.Cancel(ctx, first.ID, member); err != nil {
		t.Fatalf("cancel pending: %v", err)
	}
	second := f.request(ev.ID, member)
	if second.ID == first.ID {
		t.Fatal("expected a new request after cancelling")
	}
	if _, err := f.join.RequestToJoin(ctx, ev.ID, f.organizer, ""); !errors.Is(err, service.ErrInvalidInput) {
		t.Fatalf("organizer joining own event: got %v", err)
	}

	mine, err := f.join.ListMine(ctx, member)
	if err != nil {
		t.Fatalf("list mine: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("got %d requests, want 2", len(mine))
	}
}

func TestCapacityNeverBelowParticipants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.publishedEvent(3)
	for i := 0; i < 2; i++ {
		jr := f.request(ev.ID, f.user(model.RoleMember))
		if _, err := f.join.Approve(ctx, jr.ID, f.organizer, ""); err != nil {
			t.Fatalf("approve: %v", err)
		}
	}
	if _, err := f.events.UpdateCapacity(ctx, ev.ID, f.organizer, 1); !errors.Is(err, service.ErrCapacityBelowParticipants) {
		t.Fatalf("shrink below participants: got %v", err)
	}
	updated, err := f.events.UpdateCapacity(ctx, ev.ID, f.organizer, 2)
	if err != nil {
		t.Fatalf("shrink to participant count: %v", err)
	}
	if updated.Capacity != 2 || !updated.IsFull() {
		t.Fatalf("event after shrink = %+v", updated)
	}
	if _, err := f.events.UpdateCapacity(ctx, ev.ID, f.organizer, 0); !errors.Is(err, service.ErrInvalidInput) {
		t.Fatalf("zero capacity: got %v", err)
	}
	if _, err := f.events.Cancel(ctx, ev.ID, f.organizer); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.events.UpdateCapacity(ctx, ev.ID, f.organizer, 10); !errors.Is(err, service.ErrInvalidTransition) {
		t.Fatalf("capacity on cancelled event: got %v", err)
	}
	f.assertCounts(ev.ID, 2)
}

func TestCheckInOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.publishedEvent(2)
	jr := f.request(ev.ID, f.user(model.RoleMember))
	p, err := f.join.Approve(ctx, jr.ID, f.organizer, "")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}

	got, err := f.join.CheckIn(ctx, ev.ID, p.ID, f.organizer)
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if got.CheckedInAt == nil {
		t.Fatal("checked_in_at not set")
	}
	if _, err := f.join.CheckIn(ctx, ev.ID, p.ID, f.organizer); !errors.Is(err, service.ErrAlreadyCheckedIn) {
		t.Fatalf("second check in: got %v", err)
	}
	other := f.publishedEvent(2)
	if _, err := f.join.CheckIn(ctx, other.ID, p.ID, f.organizer); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("check in under wrong event: got %v", err)
	}

	roster, err := f.join.ListParticipants(ctx, ev.ID, f.organizer)
	if err != nil {
		t.Fatalf("list participants: %v", err)
	}
	if len(roster) != 1 || roster[0].DisplayName == "" || roster[0].CheckedInAt == nil {
		t.Fatalf("roster = %+v", roster)
	}
}

func TestNotificationsFollowDecisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.publishedEvent(2)
	member := f.user(model.RoleMember)
	jr := f.request(ev.ID, member)

	orgInbox, err := f.inbox.List(ctx, f.organizer, true, 10)
	if err != nil {
		t.Fatalf("organizer inbox: %v", err)
	}
	if len(orgInbox) != 1 || orgInbox[0].Kind != model.NotifyJoinRequestReceived {
		t.Fatalf("organizer inbox = %+v", orgInbox)
	}

	if _, err := f.join.Approve(ctx, jr.ID, f.organizer, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}
	inbox, err := f.inbox.List(ctx, member, true, 10)
	if err != nil {
		t.Fatalf("member inbox: %v", err)
	}
	if len(inbox) != 1 || inbox[0].Kind != model.NotifyJoinRequestApproved {
		t.Fatalf("member inbox = %+v", inbox)
	}
	if err := f.inbox.MarkRead(ctx, member, inbox[0].ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if err := f.inbox.MarkRead(ctx, f.organizer, inbox[0].ID); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("mark someone else's notification: got %v", err)
	}
	unread, err := f.inbox.List(ctx, member, true, 10)
	if err != nil {
		t.Fatalf("member inbox: %v", err)
	}
	if len(unread) != 0 {
		t.Fatalf("unread = %+v", unread)
	}
}

func TestEventLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.draftEvent(4)
	anon := service.Actor{}

	if _, err := f.events.Get(ctx, ev.ID, anon); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("anonymous get of draft: got %v", err)
	}
	if _, err := f.events.Get(ctx, ev.ID, f.organizer); err != nil {
		t.Fatalf("organizer get of draft: %v", err)
	}
	member := f.user(model.RoleMember)
	if _, err := f.events.Publish(ctx, ev.ID, member); !errors.Is(err, service.ErrForbidden) {
		t.Fatalf("member publish: got %v", err)
	}
	if _, err := f.events.Suspend(ctx, ev.ID, f.organizer); !errors.Is(err, service.ErrForbidden) {
		t.Fatalf("organizer suspend: got %v", err)
	}
	if _, err := f.events.Publish(ctx, ev.ID, f.organizer); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := f.events.Publish(ctx, ev.ID, f.organizer); !errors.Is(err, service.ErrInvalidTransition) {
		t.Fatalf("publish twice: got %v", err)
	}

	title := "Ridge traverse, sunrise start"
	updated, err := f.events.Update(ctx, ev.ID, f.organizer, service.EventPatch{Title: &title})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != title {
		t.Fatalf("title = %q", updated.Title)
	}
	badEnd := updated.StartsAt.Add(-time.Hour)
	if _, err := f.events.Update(ctx, ev.ID, f.organizer, service.EventPatch{EndsAt: &badEnd}); !errors.Is(err, service.ErrInvalidInput) {
		t.Fatalf("end before start: got %v", err)
	}

	found, total, err := f.events.Search(ctx, service.SearchParams{Text: "sunrise", Activity: "hike"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 1 || len(found) != 1 || found[0].ID != ev.ID {
		t.Fatalf("search = %d %+v", total, found)
	}
	if _, _, err := f.events.Search(ctx, service.SearchParams{Activity: "skydive"}); !errors.Is(err, service.ErrInvalidInput) {
		t.Fatalf("unknown activity: got %v", err)
	}

	if _, err := f.events.Cancel(ctx, ev.ID, f.organizer); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.events.Publish(ctx, ev.ID, f.organizer); !errors.Is(err, service.ErrInvalidTransition) {
		t.Fatalf("publish cancelled: got %v", err)
	}
	mine, err := f.events.ListByOrganizer(ctx, f.organizer)
	if err != nil {
		t.Fatalf("list by organizer: %v", err)
	}
	if len(mine) != 1 || mine[0].Status != model.EventCancelled {
		t.Fatalf("organizer events = %+v", mine)
	}
}

func TestCreateEventValidation(t *testing.T) {
	f := newFixture(t)
	start := time.Now().Add(24 * time.Hour)
	valid := service.EventInput{
		Title: "Lake paddle", Activity: model.ActivityPaddle, Location: "North shore",
		StartsAt: start, EndsAt: start.Add(2 * time.Hour), Capacity: 10,
	}
	tests := []struct {
		name   string
		mutate func(*service.EventInput)
	}{
		{"missing title", func(in *service.EventInput) { in.Title = "  " }},
		{"zero capacity", func(in *service.EventInput) { in.Capacity = 0 }},
		{"huge capacity", func(in *service.EventInput) { in.Capacity = service.MaxCapacity + 1 }},
		{"unknown activity", func(in *service.EventInput) { in.Activity = "skydive" }},
		{"ends before start", func(in *service.EventInput) { in.EndsAt = in.StartsAt }},
		{"in the past", func(in *service.EventInput) {
			in.StartsAt = time.Now().Add(-2 * time.Hour)
			in.EndsAt = time.Now().Add(-time.Hour)
		}},
		{"missing location", func(in *service.EventInput) { in.Location = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := valid
			tc.mutate(&in)
			if _, err := f.events.Create(context.Background(), f.organizer, in); !errors.Is(err, service.ErrInvalidInput) {
				t.Fatalf("got %v, want ErrInvalidInput", err)
			}
		})
	}
	if _, err := f.events.Create(context.Background(), f.organizer, valid); err != nil {
		t.Fatalf("valid input: %v", err)
	}
}
