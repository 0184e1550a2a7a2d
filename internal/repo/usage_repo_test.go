package repo

import (
	"context"
	"testing"
	"time"
)

func TestAddUsage_AccumulatesAndRollsOver(t *testing.T) {
	db := newStoreDB(t)
	ctx := context.Background()
	day1 := t0
	day2 := t0.Add(24 * time.Hour)

	u, err := GetUsage(ctx, db, "u1", "chats")
	if err != nil || u.Used != 0 {
		t.Fatalf("missing counter should be zero: %+v %v", u, err)
	}
	for i := 0; i < 3; i++ {
		if err := AddUsage(ctx, db, "u1", "chats", 1, day1); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	u, _ = GetUsage(ctx, db, "u1", "chats")
	if u.Used != 3 {
		t.Fatalf("expected 3, got %d", u.Used)
	}
	if err := AddUsage(ctx, db, "u1", "chats", 2, day2); err != nil {
		t.Fatalf("add day2: %v", err)
	}
	u, _ = GetUsage(ctx, db, "u1", "chats")
	if u.Used != 2 || !u.PeriodStart.Equal(day2) {
		t.Fatalf("expected rollover to 2 at day2, got %+v", u)
	}
}
