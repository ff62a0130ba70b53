package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHandleMessageAppendsLine(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	c := &ActivityConsumer{LogDir: dir}

	events := []ActivityEvent{
		{Kind: ActivityApproved, EventID: "e1", EventTitle: "Ridge walk", JoinRequestID: "r1", ParticipantID: "p1",
			UserID: "u1", ActorID: "o1", Capacity: 2, ParticipantCount: 1, OccurredAt: "2026-05-01T08:00:00Z"},
		{Kind: ActivityCancelled, EventID: "e1", EventTitle: "Ridge walk", JoinRequestID: "r1",
			UserID: "u1", ActorID: "u1", Capacity: 2, ParticipantCount: 0, OccurredAt: "2026-05-02T08:00:00Z"},
	}
	for _, ev := range events {
		body, err := json.Marshal(ev)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if err := c.HandleMessage(body); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "activity.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2:\n%s", len(lines), data)
	}
	want := `[2026-05-01T08:00:00Z] participant.approved | event_id=e1 | event="Ridge walk" | join_request_id=r1 | user_id=u1 | actor_id=o1 | places=1/2 | participant_id=p1`
	if lines[0] != want {
		t.Fatalf("line 0 = %q\nwant     %q", lines[0], want)
	}
	if strings.Contains(lines[1], "participant_id=") {
		t.Fatalf("cancel line should not carry participant id: %q", lines[1])
	}
}

func TestHandleMessageRejectsBadPayload(t *testing.T) {
	c := &ActivityConsumer{LogDir: t.TempDir()}
	for name, body := range map[string]string{
		"not json":     "{",
		"missing kind": `{"event_id":"e1"}`,
	} {
		if err := c.HandleMessage([]byte(body)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
