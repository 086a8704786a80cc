package worker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pxlchk1/trailnotify/internal/domain"
	"github.com/pxlchk1/trailnotify/internal/provider/email"
	"github.com/pxlchk1/trailnotify/internal/provider/push"
	"github.com/pxlchk1/trailnotify/internal/service/suppression"
	"github.com/pxlchk1/trailnotify/internal/store"
)

// mockStates is an in-memory CampaignStates.
type mockStates struct {
	mu    sync.Mutex
	users map[string]*domain.UserCampaignState
}

func newMockStates() *mockStates {
	return &mockStates{users: make(map[string]*domain.UserCampaignState)}
}

func (m *mockStates) add(u *domain.UserCampaignState) {
	if u.CompletedActions == nil {
		u.CompletedActions = map[string]bool{}
	}
	m.users[u.UserID] = u
}

func (m *mockStates) Enroll(_ context.Context, userID, email string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; ok {
		return nil
	}
	started := now
	m.users[userID] = &domain.UserCampaignState{
		UserID: userID, Email: email,
		StartedAt: &started, LastActiveAt: &started, WeekStartedAt: &started,
		CompletedActions:     map[string]bool{},
		NotificationsEnabled: true, EmailMarketingEnabled: true,
	}
	return nil
}

func (m *mockStates) Get(_ context.Context, userID string) (*domain.UserCampaignState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, fmt.Errorf("no campaign state for %s", userID)
	}
	return u, nil
}

func (m *mockStates) ListEnrolled(_ context.Context) ([]domain.UserCampaignState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.UserCampaignState
	for _, u := range m.users {
		if u.Enrolled() && !u.CampaignCompleted {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (m *mockStates) ListInactive(_ context.Context, inactiveBefore, nudgedBefore time.Time) ([]domain.UserCampaignState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.UserCampaignState
	for _, u := range m.users {
		if !u.Enrolled() || u.LastActiveAt == nil || !u.LastActiveAt.Before(inactiveBefore) {
			continue
		}
		if u.LastNudgeAt != nil && !u.LastNudgeAt.Before(nudgedBefore) {
			continue
		}
		out = append(out, *u)
	}
	return out, nil
}

func (m *mockStates) MarkCampaignCompleted(_ context.Context, userID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok && !u.CampaignCompleted {
		u.CampaignCompleted = true
		u.CompletedReason = reason
	}
	return nil
}

func (m *mockStates) MarkActionCompleted(_ context.Context, userID, action string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.CompletedActions[action] = true
	}
	return nil
}

func (m *mockStates) RecordPushSent(_ context.Context, userID, nudgeKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		now := time.Now()
		u.PushesThisWeek++
		u.LastPushAt = &now
		u.LastNudgeKey = nudgeKey
		u.LastNudgeAt = &now
		if u.WeekStartedAt == nil {
			u.WeekStartedAt = &now
		}
	}
	return nil
}

func (m *mockStates) RecordEmailSent(_ context.Context, userID, emailType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		now := time.Now()
		u.EmailsThisWeek++
		u.LastEmailAt = &now
		u.LastEmailType = emailType
		if u.WeekStartedAt == nil {
			u.WeekStartedAt = &now
		}
	}
	return nil
}

func (m *mockStates) ResetWeekChunk(_ context.Context, ch domain.Channel, chunkSize int, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, u := range m.users {
		if int(n) >= chunkSize {
			break
		}
		// Same eligibility filter as the repo: the week window must have
		// elapsed before the counter resets.
		if u.WeekStartedAt != nil && u.WeekStartedAt.After(now.Add(-suppression.WeekLength)) {
			continue
		}
		if ch == domain.ChannelPush && u.PushesThisWeek > 0 {
			u.PushesThisWeek = 0
			u.WeekStartedAt = &now
			n++
		}
		if ch == domain.ChannelEmail && u.EmailsThisWeek > 0 {
			u.EmailsThisWeek = 0
			u.WeekStartedAt = &now
			n++
		}
	}
	return n, nil
}

func (m *mockStates) TouchActivity(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.LastActiveAt = &at
	}
	return nil
}

func (m *mockStates) DisableEmailMarketing(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.EmailMarketingEnabled = false
	}
	return nil
}

// mockQueue is an in-memory Queue.
type mockQueue struct {
	mu    sync.Mutex
	items map[string]*domain.QueueItem
}

func newMockQueue() *mockQueue {
	return &mockQueue{items: make(map[string]*domain.QueueItem)}
}

func (m *mockQueue) Enqueue(_ context.Context, item *domain.QueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *item
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	m.items[item.ID] = &clone
	return nil
}

func (m *mockQueue) ClaimDue(_ context.Context, ch domain.Channel, limit int, _ string) ([]domain.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []domain.QueueItem
	for _, it := range m.items {
		if len(out) >= limit {
			break
		}
		if it.Channel == ch && it.Status == domain.StatusPending && !it.ScheduledAt.After(now) {
			it.Status = domain.StatusInFlight
			out = append(out, *it)
		}
	}
	return out, nil
}

func (m *mockQueue) MarkSent(_ context.Context, id string) error {
	return m.setStatus(id, domain.StatusSent, "", "")
}

func (m *mockQueue) MarkSuppressed(_ context.Context, id string, reason domain.SuppressReason) error {
	return m.setStatus(id, domain.StatusSuppressed, reason, "")
}

func (m *mockQueue) MarkFailed(_ context.Context, id, errMsg string) error {
	return m.setStatus(id, domain.StatusFailed, "", errMsg)
}

func (m *mockQueue) setStatus(id string, st domain.QueueStatus, reason domain.SuppressReason, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return fmt.Errorf("no item %s", id)
	}
	it.Status = st
	it.SuppressionReason = reason
	it.ErrorMessage = errMsg
	if st == domain.StatusSent || st == domain.StatusFailed {
		it.Attempts++
	}
	return nil
}

func (m *mockQueue) Reschedule(_ context.Context, id, errMsg string, nextAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return fmt.Errorf("no item %s", id)
	}
	it.Status = domain.StatusPending
	it.ScheduledAt = nextAt
	it.ErrorMessage = errMsg
	it.Attempts++
	return nil
}

func (m *mockQueue) SuppressPendingForTrip(_ context.Context, tripID, msgType string, reason domain.SuppressReason) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, it := range m.items {
		if it.Status != domain.StatusPending || it.TripID() != tripID {
			continue
		}
		if msgType != "" && it.Type != msgType {
			continue
		}
		it.Status = domain.StatusSuppressed
		it.SuppressionReason = reason
		n++
	}
	return n, nil
}

func (m *mockQueue) HasRecentItem(_ context.Context, userID, msgType string, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.UserID == userID && it.Type == msgType && !it.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockQueue) ReclaimStale(_ context.Context, staleAge time.Duration, maxAttempts int) (int64, int64, error) {
	return 0, 0, nil
}

// byType returns queued items of one type, any status.
func (m *mockQueue) byType(msgType string) []*domain.QueueItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.QueueItem
	for _, it := range m.items {
		if it.Type == msgType {
			out = append(out, it)
		}
	}
	return out
}

// byUser returns queued items for one user.
func (m *mockQueue) byUser(userID string) []*domain.QueueItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.QueueItem
	for _, it := range m.items {
		if it.UserID == userID {
			out = append(out, it)
		}
	}
	return out
}

// mockSubs is an in-memory Subscribers.
type mockSubs struct {
	mu   sync.Mutex
	subs map[string]*domain.SubscriberState // keyed by user id
}

func newMockSubs() *mockSubs {
	return &mockSubs{subs: make(map[string]*domain.SubscriberState)}
}

func (m *mockSubs) GetByUserID(_ context.Context, userID string) (*domain.SubscriberState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[userID]
	if !ok {
		return nil, suppression.ErrUnknownEmail
	}
	return s, nil
}

func (m *mockSubs) Ensure(_ context.Context, userID, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[userID]; !ok {
		m.subs[userID] = &domain.SubscriberState{UserID: userID, Email: strings.ToLower(email)}
	}
	return nil
}

// mockTokens is an in-memory Tokens.
type mockTokens struct {
	mu     sync.Mutex
	tokens map[string][]store.DeviceToken
}

func newMockTokens() *mockTokens {
	return &mockTokens{tokens: make(map[string][]store.DeviceToken)}
}

func (m *mockTokens) add(userID, token string) {
	m.tokens[userID] = append(m.tokens[userID], store.DeviceToken{UserID: userID, Token: token})
}

func (m *mockTokens) TokensForUser(_ context.Context, userID string) ([]store.DeviceToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[userID], nil
}

func (m *mockTokens) RemoveToken(_ context.Context, userID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.tokens[userID][:0]
	for _, t := range m.tokens[userID] {
		if t.Token != token {
			kept = append(kept, t)
		}
	}
	m.tokens[userID] = kept
	return nil
}

// mockPushSender records multicast sends. sendErr fails every send;
// failToken fails only sends addressed to that token.
type mockPushSender struct {
	mu        sync.Mutex
	sends     []string // item types sent
	result    *push.MulticastResult
	sendErr   error
	failToken string
}

func (m *mockPushSender) SendMulticast(_ context.Context, tokens []string, title, body string, _ map[string]string) (*push.MulticastResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	for _, tok := range tokens {
		if tok == m.failToken && m.failToken != "" {
			return nil, fmt.Errorf("fcm: received status 500")
		}
	}
	m.sends = append(m.sends, title)
	if m.result != nil {
		return m.result, nil
	}
	return &push.MulticastResult{Success: len(tokens)}, nil
}

// mockEmailSender records email sends. failTimes fails the next N sends;
// failFor fails only sends to that address.
type mockEmailSender struct {
	mu        sync.Mutex
	sent      []*email.Message
	failTimes int
	failFor   string
}

func (m *mockEmailSender) Send(_ context.Context, msg *email.Message) (*email.SendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTimes > 0 {
		m.failTimes--
		return &email.SendResult{Success: false, Error: fmt.Errorf("throttled")}, nil
	}
	if m.failFor != "" && msg.To == m.failFor {
		return &email.SendResult{Success: false, Error: fmt.Errorf("throttled")}, nil
	}
	m.sent = append(m.sent, msg)
	return &email.SendResult{Success: true, MessageID: "msg-1", SentAt: time.Now()}, nil
}

// mockInvites is an in-memory Invitations.
type mockInvites struct {
	mu       sync.Mutex
	pending  map[string][]domain.TripInvitation // keyed by invitee email
	accepted []string
}

func newMockInvites() *mockInvites {
	return &mockInvites{pending: make(map[string][]domain.TripInvitation)}
}

func (m *mockInvites) PendingForEmail(_ context.Context, email string) ([]domain.TripInvitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending[strings.ToLower(email)], nil
}

func (m *mockInvites) Accept(_ context.Context, invitationID, userID string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accepted = append(m.accepted, invitationID)
	return nil
}
