package notify

import (
	"context"
	"testing"
	"time"
)

func TestQueueNotifierRoundtrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	q := NewInMemoryQueue(4)
	messages, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}

	n := NewQueueNotifier(q)
	if err := n.Notify(ctx, 42, "Justification Submitted", "pending review", KindJustificationSubmitted); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	select {
	case got := <-messages:
		if got.UserID != 42 || got.Kind != KindJustificationSubmitted {
			t.Fatalf("message = %+v", got)
		}
		if got.ID == "" {
			t.Fatal("publish must stamp an id")
		}
		if got.CreatedAt.IsZero() {
			t.Fatal("publish must stamp a creation time")
		}
	case <-ctx.Done():
		t.Fatal("message never arrived")
	}
}

func TestMemoryStoreInbox(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for i, kind := range []Kind{KindJustificationSubmitted, KindJustificationApproved} {
		err := s.Insert(ctx, Notification{
			UserID:    7,
			Title:     "t",
			Message:   "m",
			Kind:      kind,
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	if err := s.Insert(ctx, Notification{UserID: 8, Title: "t", Message: "m", Kind: KindJustificationRejected}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	list, err := s.ListByUser(ctx, 7, false, 50)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("inbox = %d, want 2", len(list))
	}
	if list[0].Kind != KindJustificationApproved {
		t.Fatal("inbox not newest first")
	}

	ok, err := s.MarkRead(ctx, list[0].ID, 7)
	if err != nil || !ok {
		t.Fatalf("MarkRead = %v, %v", ok, err)
	}
	unread, err := s.ListByUser(ctx, 7, true, 50)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(unread) != 1 {
		t.Fatalf("unread = %d, want 1", len(unread))
	}

	// Another user cannot mark someone else's notification.
	ok, err = s.MarkRead(ctx, unread[0].ID, 8)
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if ok {
		t.Fatal("cross-user MarkRead must report false")
	}
}
