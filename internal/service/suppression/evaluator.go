package suppression

import (
	"time"

	"github.com/pxlchk1/trailnotify/internal/domain"
)

// Suppression thresholds. Named here rather than inlined so they can be
// tuned without touching rule order.
const (
	// RecentActivityWindow suppresses nudges for users seen recently.
	RecentActivityWindow = 12 * time.Hour

	// WeeklyPushCap / WeeklyEmailCap bound sends per channel per week.
	WeeklyPushCap  = 2
	WeeklyEmailCap = 2

	// WeekLength is the counter window; counters reset once per boundary.
	WeekLength = 7 * 24 * time.Hour

	// CoreActionGoal ends the campaign once this many distinct core
	// actions are completed.
	CoreActionGoal = 2
)

// Decision is the outcome of evaluating a candidate message.
type Decision struct {
	Allowed bool
	Reason  domain.SuppressReason
}

var allow = Decision{Allowed: true}

func suppress(r domain.SuppressReason) Decision {
	return Decision{Reason: r}
}

// Candidate describes the message being considered.
type Candidate struct {
	Type string

	// Transactional items (trip reminders, invitation emails) are tied to
	// something the user did, so only opt-out and hard-bounce state can
	// stop them. The campaign rules (recent activity, weekly cap, goal
	// reached) apply to marketing items only.
	Transactional bool
}

// Evaluate classifies a candidate against the user's campaign state and the
// webhook-derived subscriber state. Rules run in a fixed order; the first
// match wins. Evaluate has no side effects: callers act on the Decision.
func Evaluate(user *domain.UserCampaignState, sub *domain.SubscriberState, cand Candidate, ch domain.Channel, now time.Time) Decision {
	// 1. Channel opt-out.
	switch ch {
	case domain.ChannelPush:
		if !user.NotificationsEnabled {
			return suppress(domain.ReasonNotificationsDisabled)
		}
	case domain.ChannelEmail:
		if sub != nil && sub.Unsubscribed {
			return suppress(domain.ReasonUnsubscribed)
		}
		if !cand.Transactional {
			if (sub != nil && sub.MarketingUnsubscribed) || !user.EmailMarketingEnabled {
				return suppress(domain.ReasonUnsubscribed)
			}
		}
	}

	// 2. Bounced address (email only). Transactional mail may still go to
	// soft-bounced addresses; a hard bounce blocks everything.
	if ch == domain.ChannelEmail && sub != nil && sub.Bounced {
		if !cand.Transactional || sub.BounceType != domain.BounceSoft {
			return suppress(domain.ReasonBounced)
		}
	}

	// 3. Recent activity: a user in the app now doesn't need a nudge. A
	// trip reminder still goes out; being active is the normal state for
	// someone with an upcoming trip.
	if !cand.Transactional && user.LastActiveAt != nil && now.Sub(*user.LastActiveAt) < RecentActivityWindow {
		return suppress(domain.ReasonRecentlyActive)
	}

	// 4. Weekly frequency cap, only while the week window is still open.
	// The weekly reset pass owns the counter reset; the evaluator never
	// mutates state.
	if !cand.Transactional && weekOpen(user.WeekStartedAt, now) {
		if ch == domain.ChannelPush && user.PushesThisWeek >= WeeklyPushCap {
			return suppress(domain.ReasonFrequencyCap)
		}
		if ch == domain.ChannelEmail && user.EmailsThisWeek >= WeeklyEmailCap {
			return suppress(domain.ReasonFrequencyCap)
		}
	}

	// 5. Campaign goal reached. Ends the marketing tracks only; reminders
	// for real trips outlive the campaign.
	if !cand.Transactional && user.CoreActionsCompleted() >= CoreActionGoal {
		return suppress(domain.ReasonCampaignCompleted)
	}

	// 6. Duplicate for this cycle: the candidate was already the last
	// message sent on its track.
	if cand.Type != "" {
		if ch == domain.ChannelPush && user.LastNudgeKey == cand.Type {
			return suppress(domain.ReasonDuplicateDay)
		}
		if ch == domain.ChannelEmail && user.LastEmailType == cand.Type {
			return suppress(domain.ReasonDuplicateDay)
		}
	}

	return allow
}

func weekOpen(weekStartedAt *time.Time, now time.Time) bool {
	return weekStartedAt != nil && now.Sub(*weekStartedAt) < WeekLength
}
