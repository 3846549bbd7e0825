package worker

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"broadcast-service/internal/domain"
	"broadcast-service/pkg/xerrors"
)

type stubLedger struct {
	mu          sync.Mutex
	broadcasts  map[string]*domain.Broadcast
	unprocessed []*domain.Reaction
	processed   []int64
}

func (s *stubLedger) SaveBroadcast(context.Context, *domain.Broadcast) (*domain.Broadcast, error) {
	return nil, nil
}

func (s *stubLedger) GetBroadcast(_ context.Context, id string) (*domain.Broadcast, error) {
	b, ok := s.broadcasts[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return b, nil
}

func (s *stubLedger) RecentBroadcasts(context.Context, time.Time, string, int) ([]*domain.Broadcast, error) {
	return nil, nil
}

func (s *stubLedger) ListRecent(context.Context, int) ([]*domain.Broadcast, error) { return nil, nil }

func (s *stubLedger) CountBroadcastsSince(context.Context, time.Time) (int, error) { return 0, nil }

func (s *stubLedger) UpdateSummary(context.Context, string, string, time.Time) error { return nil }

func (s *stubLedger) GetReaction(context.Context, string, string) (*domain.Reaction, error) {
	return nil, xerrors.ErrNotFound
}

func (s *stubLedger) UpsertReaction(_ context.Context, r *domain.Reaction) (*domain.Reaction, error) {
	return r, nil
}

func (s *stubLedger) ActiveReactionCounts(context.Context, string) (map[string]int, error) {
	return nil, nil
}

func (s *stubLedger) UnprocessedReactions(context.Context, time.Time) ([]*domain.Reaction, error) {
	return s.unprocessed, nil
}

func (s *stubLedger) MarkProcessed(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed = append(s.processed, ids...)
	return nil
}

func (s *stubLedger) CountReactionsSince(context.Context, time.Time) (int, error) { return 0, nil }

func (s *stubLedger) SaveDeliveryAttempts(context.Context, []*domain.DeliveryAttempt) error {
	return nil
}

type stubSender struct {
	mu     sync.Mutex
	bodies []string
	err    error
}

func (s *stubSender) BroadcastDigest(_ context.Context, body string) (*domain.BroadcastOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.bodies = append(s.bodies, body)
	return &domain.BroadcastOutcome{SentCount: 1}, nil
}

type stubLocker struct {
	held     bool
	acquired int
	released int
}

func (l *stubLocker) AcquireLock(context.Context, string, time.Duration) (bool, error) {
	l.acquired++
	return !l.held, nil
}

func (l *stubLocker) ReleaseLock(context.Context, string) error {
	l.released++
	return nil
}

func newTestLedger() *stubLedger {
	now := time.Now()
	return &stubLedger{
		broadcasts: map[string]*domain.Broadcast{
			"b1": {ID: "b1", SenderName: "Sam", Body: "Good morning everyone", CreatedAt: now.Add(-time.Hour)},
			"b2": {ID: "b2", SenderName: "Pat", Body: "Potluck is on Saturday", CreatedAt: now.Add(-30 * time.Minute)},
		},
		unprocessed: []*domain.Reaction{
			{ID: 1, BroadcastID: "b1", Emoji: "❤️", IsActive: true, UpdatedAt: now},
			{ID: 2, BroadcastID: "b1", Emoji: "❤️", IsActive: true, UpdatedAt: now},
			{ID: 3, BroadcastID: "b1", Emoji: "👍", IsActive: true, UpdatedAt: now},
			{ID: 4, BroadcastID: "b2", Emoji: "😂", IsActive: true, UpdatedAt: now},
		},
	}
}

func TestEmitPauseDigest(t *testing.T) {
	ledger := newTestLedger()
	sender := &stubSender{}
	locker := &stubLocker{}

	w, err := NewDigestWorker(ledger, sender, locker, zap.NewNop(), "")
	require.NoError(t, err)

	w.emitPauseDigest(context.Background())

	require.Len(t, sender.bodies, 1)
	body := sender.bodies[0]
	assert.Contains(t, body, "Reaction roundup:")
	assert.Contains(t, body, `❤️×2 👍 to "Good morning everyone" (Sam)`)
	assert.Contains(t, body, `😂 to "Potluck is on Saturday" (Pat)`)

	// Most-reacted broadcast comes first.
	assert.Less(t, strings.Index(body, "Sam"), strings.Index(body, "Pat"))

	assert.ElementsMatch(t, []int64{1, 2, 3, 4}, ledger.processed)
	assert.Equal(t, 1, locker.acquired)
	assert.Equal(t, 1, locker.released)
}

func TestEmitPauseDigestSkipsWhenLockHeld(t *testing.T) {
	ledger := newTestLedger()
	sender := &stubSender{}
	locker := &stubLocker{held: true}

	w, err := NewDigestWorker(ledger, sender, locker, zap.NewNop(), "")
	require.NoError(t, err)

	w.emitPauseDigest(context.Background())

	assert.Empty(t, sender.bodies)
	assert.Empty(t, ledger.processed)
	assert.Zero(t, locker.released)
}

func TestEmitPauseDigestNothingToSend(t *testing.T) {
	ledger := &stubLedger{broadcasts: map[string]*domain.Broadcast{}}
	sender := &stubSender{}

	w, err := NewDigestWorker(ledger, sender, &stubLocker{}, zap.NewNop(), "")
	require.NoError(t, err)

	w.emitPauseDigest(context.Background())
	assert.Empty(t, sender.bodies)
}

func TestEmitPauseDigestKeepsReactionsOnSendFailure(t *testing.T) {
	ledger := newTestLedger()
	sender := &stubSender{err: xerrors.ErrNoRecipients}

	w, err := NewDigestWorker(ledger, sender, &stubLocker{}, zap.NewNop(), "")
	require.NoError(t, err)

	w.emitPauseDigest(context.Background())

	// Nothing marked processed, the next window retries them.
	assert.Empty(t, ledger.processed)
}

func TestEmitDailyDigestTopFive(t *testing.T) {
	now := time.Now()
	ledger := &stubLedger{broadcasts: map[string]*domain.Broadcast{}}
	for i := 0; i < 7; i++ {
		id := string(rune('a' + i))
		ledger.broadcasts[id] = &domain.Broadcast{
			ID: id, SenderName: "Sender " + id, Body: "Message " + id,
			CreatedAt: now.Add(-time.Duration(i) * time.Minute),
		}
		// Descending reaction totals across broadcasts.
		for j := 0; j <= 7-i; j++ {
			ledger.unprocessed = append(ledger.unprocessed, &domain.Reaction{
				ID: int64(len(ledger.unprocessed) + 1), BroadcastID: id, Emoji: "❤️",
				IsActive: true, UpdatedAt: now,
			})
		}
	}

	sender := &stubSender{}
	w, err := NewDigestWorker(ledger, sender, &stubLocker{}, zap.NewNop(), "")
	require.NoError(t, err)

	w.emitDailyDigest(context.Background())

	require.Len(t, sender.bodies, 1)
	body := sender.bodies[0]
	assert.Contains(t, body, "Today's reactions:")
	assert.Contains(t, body, "1. \"Message a\"")
	assert.Contains(t, body, "5. \"Message e\"")
	assert.NotContains(t, body, "Message f")
	assert.NotContains(t, body, "Message g")

	// Every reaction is marked processed, including the ones outside
	// the top five.
	assert.Len(t, ledger.processed, len(ledger.unprocessed))
}

func TestResetSilenceTimerNeverBlocks(t *testing.T) {
	w, err := NewDigestWorker(newTestLedger(), &stubSender{}, nil, zap.NewNop(), "")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			w.ResetSilenceTimer()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ResetSilenceTimer blocked")
	}
}

func TestNewDigestWorkerRejectsBadCron(t *testing.T) {
	_, err := NewDigestWorker(newTestLedger(), &stubSender{}, nil, zap.NewNop(), "not a cron")
	assert.Error(t, err)
}
