package worker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/pxlchk1/trailnotify/internal/domain"
	"github.com/pxlchk1/trailnotify/internal/service/suppression"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

// resetDueUser is an enrolled user whose week window elapsed, making the
// user eligible for the next counter reset.
func resetDueUser(userID string) *domain.UserCampaignState {
	return enrolledUser(userID, 8*24*time.Hour)
}

func TestWeeklyReset_ZeroesCountersInChunks(t *testing.T) {
	states := newMockStates()
	for _, id := range []string{"a", "b", "c"} {
		u := resetDueUser("user-" + id)
		u.PushesThisWeek = 2
		u.EmailsThisWeek = 1
		states.add(u)
	}
	fresh := resetDueUser("user-zero")
	states.add(fresh)

	w := NewWeeklyResetWorker(states, testRedis(t), nil)
	now := time.Now().UTC()
	if err := w.RunPass(context.Background(), now); err != nil {
		t.Fatalf("RunPass: %v", err)
	}

	for _, id := range []string{"a", "b", "c"} {
		u, _ := states.Get(context.Background(), "user-"+id)
		if u.PushesThisWeek != 0 || u.EmailsThisWeek != 0 {
			t.Errorf("user-%s counters not reset: %+v", id, u)
		}
		if !u.WeekStartedAt.Equal(now) {
			t.Errorf("user-%s week start not stamped", id)
		}
	}
}

func TestWeeklyReset_IdempotentAcrossPasses(t *testing.T) {
	states := newMockStates()
	u := resetDueUser("user-001")
	u.PushesThisWeek = 2
	states.add(u)

	w := NewWeeklyResetWorker(states, testRedis(t), nil)
	first := time.Now().UTC()
	if err := w.RunPass(context.Background(), first); err != nil {
		t.Fatalf("RunPass #1: %v", err)
	}
	got, _ := states.Get(context.Background(), "user-001")
	stamp := *got.WeekStartedAt

	if err := w.RunPass(context.Background(), time.Now().UTC().Add(time.Minute)); err != nil {
		t.Fatalf("RunPass #2: %v", err)
	}
	got, _ = states.Get(context.Background(), "user-001")
	if !got.WeekStartedAt.Equal(stamp) {
		t.Error("second pass must not re-stamp already-reset users")
	}
}

func TestWeeklyReset_LockHolderBlocksSecondInstance(t *testing.T) {
	states := newMockStates()
	u := resetDueUser("user-001")
	u.PushesThisWeek = 2
	states.add(u)

	rdb := testRedis(t)
	// Simulate another instance holding the reset lock.
	if err := rdb.SetNX(context.Background(), "trailnotify:lock:weekly-reset", "other-owner", time.Minute).Err(); err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	w := NewWeeklyResetWorker(states, rdb, nil)
	if err := w.RunPass(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("RunPass: %v", err)
	}

	got, _ := states.Get(context.Background(), "user-001")
	if got.PushesThisWeek != 2 {
		t.Error("pass must be a no-op while another instance holds the lock")
	}
}

func TestNextBoundary(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(10 * 24 * time.Hour)

	got := NextBoundary(start, now)
	want := start.Add(14 * 24 * time.Hour)
	if !got.Equal(want) {
		t.Errorf("NextBoundary = %s, want %s", got, want)
	}
}

func TestWeeklyReset_ChannelsIndependent(t *testing.T) {
	states := newMockStates()
	u := resetDueUser("user-001")
	u.PushesThisWeek = 2
	states.add(u)

	n, err := states.ResetWeekChunk(context.Background(), domain.ChannelEmail, ResetChunkSize, time.Now())
	if err != nil {
		t.Fatalf("ResetWeekChunk: %v", err)
	}
	if n != 0 {
		t.Errorf("email reset must not touch push counters, reset %d", n)
	}
}

func TestWeeklyReset_MidWeekCountersSurvive(t *testing.T) {
	states := newMockStates()
	u := enrolledUser("user-001", time.Hour) // week window opened an hour ago
	u.PushesThisWeek = 2
	states.add(u)

	w := NewWeeklyResetWorker(states, testRedis(t), nil)
	now := time.Now().UTC()
	if err := w.RunPass(context.Background(), now); err != nil {
		t.Fatalf("RunPass: %v", err)
	}

	got, _ := states.Get(context.Background(), "user-001")
	if got.PushesThisWeek != 2 {
		t.Fatalf("counter reset before the week boundary: pushes=%d", got.PushesThisWeek)
	}
	d := suppression.Evaluate(got, nil, suppression.Candidate{Type: "onboarding_day02_first_trip"}, domain.ChannelPush, now)
	if d.Allowed || d.Reason != domain.ReasonFrequencyCap {
		t.Errorf("weekly cap must still bind mid-week, got %+v", d)
	}
}
