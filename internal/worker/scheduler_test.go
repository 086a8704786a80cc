package worker

import (
	"context"
	"testing"
	"time"

	"github.com/pxlchk1/trailnotify/internal/catalog"
	"github.com/pxlchk1/trailnotify/internal/domain"
)

func enrolledUser(userID string, startedAgo time.Duration) *domain.UserCampaignState {
	started := time.Now().Add(-startedAgo)
	lastActive := time.Now().Add(-13 * time.Hour)
	week := started
	return &domain.UserCampaignState{
		UserID: userID, Email: userID + "@x.com",
		StartedAt: &started, LastActiveAt: &lastActive, WeekStartedAt: &week,
		CompletedActions:     map[string]bool{},
		NotificationsEnabled: true, EmailMarketingEnabled: true,
	}
}

func newScheduler(states *mockStates, queue *mockQueue) *CampaignScheduler {
	return NewCampaignScheduler(states, newMockSubs(), queue, catalog.Default())
}

func TestScheduler_Day1EnqueuesBothTracks(t *testing.T) {
	states := newMockStates()
	states.add(enrolledUser("user-001", time.Hour)) // day 1
	queue := newMockQueue()

	if err := newScheduler(states, queue).RunPass(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("RunPass: %v", err)
	}

	push := queue.byType("onboarding_day01_welcome")
	if len(push) != 1 || push[0].Status != domain.StatusPending {
		t.Fatalf("expected 1 pending welcome push, got %+v", push)
	}
	mail := queue.byType("drip_day01_welcome")
	if len(mail) != 1 || mail[0].Payload.TemplateID != "welcome" {
		t.Fatalf("expected 1 welcome email with template, got %+v", mail)
	}
}

func TestScheduler_LockHolderBlocksSecondInstance(t *testing.T) {
	states := newMockStates()
	states.add(enrolledUser("user-001", time.Hour))
	queue := newMockQueue()

	rdb := testRedis(t)
	if err := rdb.SetNX(context.Background(), "trailnotify:lock:schedule", "other-owner", time.Minute).Err(); err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	s := newScheduler(states, queue)
	s.UseLock(rdb, nil)
	if err := s.RunPass(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("RunPass: %v", err)
	}

	if got := queue.byUser("user-001"); len(got) != 0 {
		t.Errorf("pass must be a no-op while another instance holds the lock, got %+v", got)
	}
}

func TestScheduler_OptOutRecordsSuppressedRow(t *testing.T) {
	states := newMockStates()
	u := enrolledUser("user-001", time.Hour)
	u.NotificationsEnabled = false
	states.add(u)
	queue := newMockQueue()

	if err := newScheduler(states, queue).RunPass(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("RunPass: %v", err)
	}

	push := queue.byType("onboarding_day01_welcome")
	if len(push) != 1 {
		t.Fatalf("expected suppressed row, got %d items", len(push))
	}
	if push[0].Status != domain.StatusSuppressed || push[0].SuppressionReason != domain.ReasonNotificationsDisabled {
		t.Errorf("got %s/%s, want suppressed/notifications_disabled", push[0].Status, push[0].SuppressionReason)
	}
	// Email track is independent of push opt-out.
	if mail := queue.byType("drip_day01_welcome"); len(mail) != 1 || mail[0].Status != domain.StatusPending {
		t.Errorf("email track must be unaffected, got %+v", mail)
	}
}

func TestScheduler_SkipRuleDropsCompletedAction(t *testing.T) {
	states := newMockStates()
	u := enrolledUser("user-001", 25*time.Hour) // day 2
	u.CompletedActions[domain.ActionCreatedTrip] = true
	states.add(u)
	queue := newMockQueue()

	if err := newScheduler(states, queue).RunPass(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("RunPass: %v", err)
	}

	// Day 2 on both tracks nudges trip creation; the user already did it,
	// so neither candidate exists and no row of any status appears.
	if got := queue.byUser("user-001"); len(got) != 0 {
		t.Errorf("expected no rows for completed-action day, got %+v", got)
	}
}

func TestScheduler_GoalReachedCompletesCampaign(t *testing.T) {
	states := newMockStates()
	u := enrolledUser("user-001", time.Hour)
	u.CompletedActions[domain.ActionCreatedTrip] = true
	u.CompletedActions[domain.ActionAddedGearItem] = true
	states.add(u)
	queue := newMockQueue()

	if err := newScheduler(states, queue).RunPass(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("RunPass: %v", err)
	}

	push := queue.byType("onboarding_day01_welcome")
	if len(push) != 1 || push[0].SuppressionReason != domain.ReasonCampaignCompleted {
		t.Fatalf("expected campaign_completed suppressed row, got %+v", push)
	}

	got, _ := states.Get(context.Background(), "user-001")
	if !got.CampaignCompleted || got.CompletedReason != domain.CompletedReasonGoal {
		t.Errorf("campaign not completed for goal: %+v", got)
	}
}

func TestScheduler_PastHorizonCompletesCampaign(t *testing.T) {
	states := newMockStates()
	states.add(enrolledUser("user-001", 31*24*time.Hour)) // day 32
	queue := newMockQueue()

	if err := newScheduler(states, queue).RunPass(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("RunPass: %v", err)
	}

	if got := queue.byUser("user-001"); len(got) != 0 {
		t.Errorf("no candidates expected past the horizon, got %+v", got)
	}
	got, _ := states.Get(context.Background(), "user-001")
	if !got.CampaignCompleted || got.CompletedReason != domain.CompletedReasonHorizon {
		t.Errorf("campaign not completed at horizon: %+v", got)
	}
}

func TestScheduler_DuplicateForDayLeavesNoRow(t *testing.T) {
	states := newMockStates()
	u := enrolledUser("user-001", time.Hour)
	u.LastNudgeKey = "onboarding_day01_welcome"
	states.add(u)
	queue := newMockQueue()

	if err := newScheduler(states, queue).RunPass(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("RunPass: %v", err)
	}

	if got := queue.byType("onboarding_day01_welcome"); len(got) != 0 {
		t.Errorf("duplicate candidate must leave no row, got %+v", got)
	}
}

func TestScheduler_EmailHorizonShorterThanPush(t *testing.T) {
	states := newMockStates()
	states.add(enrolledUser("user-001", 25*24*time.Hour)) // day 26: push yes, email past horizon
	queue := newMockQueue()

	if err := newScheduler(states, queue).RunPass(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("RunPass: %v", err)
	}

	if got := queue.byType("onboarding_day26_almost_there"); len(got) != 1 {
		t.Errorf("expected day-26 push, got %+v", got)
	}
	for _, it := range queue.byUser("user-001") {
		if it.Channel == domain.ChannelEmail {
			t.Errorf("no email candidates past day 21, got %+v", it)
		}
	}
}
