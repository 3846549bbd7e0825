package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"

	"broadcast-service/internal/domain"
	"broadcast-service/internal/reaction"
	"broadcast-service/internal/repository"
	"broadcast-service/pkg/xerrors"
)

const (
	digestLockKey = "digest:inflight"
	digestLockTTL = 5 * time.Minute

	defaultPauseDelay = 30 * time.Minute
	defaultDailyCron  = "0 20 * * *"

	// Pause digests look back this far for unprocessed reactions.
	pauseWindow = 2 * time.Hour
	// Daily digests cover the top N most-reacted broadcasts.
	dailyTopN = 5
)

// DigestSender delivers a formatted digest to the roster. Implemented by
// the broadcast usecase.
type DigestSender interface {
	BroadcastDigest(ctx context.Context, body string) (*domain.BroadcastOutcome, error)
}

// Locker is the digest-in-flight lock, shared across instances.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

// DigestWorker drives the two digest triggers: a silence timer that
// fires after a quiet period, and a fixed daily tick. The silence timer
// is owned by one goroutine and mutated only through reset events, so
// concurrent resets from the ingest path need no shared timer state.
type DigestWorker struct {
	ledger repository.LedgerRepository
	sender DigestSender
	locker Locker
	logger *zap.Logger

	pauseDelay time.Duration
	dailyCron  string
	resetCh    chan struct{}
	mu         sync.Mutex // serializes pause and daily emission in-process
}

func NewDigestWorker(ledger repository.LedgerRepository, sender DigestSender, locker Locker, logger *zap.Logger, dailyCron string) (*DigestWorker, error) {
	if dailyCron == "" {
		dailyCron = defaultDailyCron
	}
	if !gronx.IsValid(dailyCron) {
		return nil, fmt.Errorf("invalid digest cron expression: %s", dailyCron)
	}

	return &DigestWorker{
		ledger:     ledger,
		sender:     sender,
		locker:     locker,
		logger:     logger,
		pauseDelay: defaultPauseDelay,
		dailyCron:  dailyCron,
		resetCh:    make(chan struct{}, 1),
	}, nil
}

// ResetSilenceTimer restarts the quiet-period countdown. Called from the
// ingest path on every accepted non-reaction broadcast; never blocks, and
// coalescing concurrent resets is fine since last writer wins anyway.
func (w *DigestWorker) ResetSilenceTimer() {
	select {
	case w.resetCh <- struct{}{}:
	default:
	}
}

func (w *DigestWorker) Start(ctx context.Context) {
	w.logger.Info("starting digest worker",
		zap.Duration("pause_delay", w.pauseDelay),
		zap.String("daily_cron", w.dailyCron))
	go w.runPauseTimer(ctx)
	go w.runDailyTimer(ctx)
}

func (w *DigestWorker) runPauseTimer(ctx context.Context) {
	timer := time.NewTimer(w.pauseDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stopping pause-digest timer")
			return

		case <-w.resetCh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.pauseDelay)

		case <-timer.C:
			w.emitPauseDigest(ctx)
			timer.Reset(w.pauseDelay)
		}
	}
}

func (w *DigestWorker) runDailyTimer(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stopping daily-digest timer")
			return
		default:
		}

		next, err := gronx.NextTickAfter(w.dailyCron, time.Now(), false)
		if err != nil {
			w.logger.Error("daily tick computation failed",
				zap.String("cron", w.dailyCron),
				zap.Error(err))
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-ctx.Done():
			w.logger.Info("stopping daily-digest timer")
			return
		case <-time.After(time.Until(next)):
			w.emitDailyDigest(ctx)
		}
	}
}

func (w *DigestWorker) emitPauseDigest(ctx context.Context) {
	w.withDigestLock(ctx, func() {
		since := time.Now().Add(-pauseWindow)
		reactions, err := w.ledger.UnprocessedReactions(ctx, since)
		if err != nil {
			w.logger.Error("pause digest query failed", zap.Error(err))
			return
		}
		if len(reactions) == 0 {
			return
		}

		entries, ids := w.groupByBroadcast(ctx, reactions)
		if len(entries) == 0 {
			return
		}

		if _, err := w.sender.BroadcastDigest(ctx, formatPauseDigest(entries)); err != nil {
			w.logger.Error("pause digest send failed", zap.Error(err))
			return
		}
		if err := w.ledger.MarkProcessed(ctx, ids); err != nil {
			w.logger.Error("marking reactions processed failed", zap.Error(err))
			return
		}

		w.logger.Info("pause digest sent",
			zap.Int("broadcasts", len(entries)),
			zap.Int("reactions", len(ids)))
	})
}

func (w *DigestWorker) emitDailyDigest(ctx context.Context) {
	w.withDigestLock(ctx, func() {
		now := time.Now()
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

		reactions, err := w.ledger.UnprocessedReactions(ctx, midnight)
		if err != nil {
			w.logger.Error("daily digest query failed", zap.Error(err))
			return
		}
		if len(reactions) == 0 {
			return
		}

		entries, ids := w.groupByBroadcast(ctx, reactions)
		if len(entries) == 0 {
			return
		}
		if len(entries) > dailyTopN {
			entries = entries[:dailyTopN]
		}

		if _, err := w.sender.BroadcastDigest(ctx, formatDailyDigest(entries)); err != nil {
			w.logger.Error("daily digest send failed", zap.Error(err))
			return
		}
		if err := w.ledger.MarkProcessed(ctx, ids); err != nil {
			w.logger.Error("marking reactions processed failed", zap.Error(err))
			return
		}

		w.logger.Info("daily digest sent",
			zap.Int("broadcasts", len(entries)),
			zap.Int("reactions", len(ids)))
	})
}

// withDigestLock serializes digest emission. In-process the mutex is
// enough; the shared lock also covers multiple instances. When the lock
// backend is down we proceed rather than skip a digest.
func (w *DigestWorker) withDigestLock(ctx context.Context, fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.locker != nil {
		ok, err := w.locker.AcquireLock(ctx, digestLockKey, digestLockTTL)
		if err != nil {
			w.logger.Warn("digest lock backend unavailable, proceeding", zap.Error(err))
		} else if !ok {
			w.logger.Info("digest already in flight, skipping")
			return
		} else {
			defer func() {
				if err := w.locker.ReleaseLock(ctx, digestLockKey); err != nil {
					w.logger.Warn("digest lock release failed", zap.Error(err))
				}
			}()
		}
	}

	fn()
}

type digestEntry struct {
	broadcast *domain.Broadcast
	counts    map[string]int
	total     int
}

// groupByBroadcast collapses reactions into per-broadcast emoji counts,
// ordered most-reacted first. The returned ids cover every input
// reaction so all of them get marked processed, including ones whose
// broadcast has meanwhile disappeared.
func (w *DigestWorker) groupByBroadcast(ctx context.Context, reactions []*domain.Reaction) ([]*digestEntry, []int64) {
	ids := make([]int64, 0, len(reactions))
	byBroadcast := make(map[string]*digestEntry)

	for _, r := range reactions {
		ids = append(ids, r.ID)

		entry, ok := byBroadcast[r.BroadcastID]
		if !ok {
			b, err := w.ledger.GetBroadcast(ctx, r.BroadcastID)
			if err != nil {
				if !errors.Is(err, xerrors.ErrNotFound) {
					w.logger.Warn("digest broadcast lookup failed",
						zap.String("broadcast_id", r.BroadcastID),
						zap.Error(err))
				}
				byBroadcast[r.BroadcastID] = &digestEntry{counts: make(map[string]int)}
				continue
			}
			entry = &digestEntry{broadcast: b, counts: make(map[string]int)}
			byBroadcast[r.BroadcastID] = entry
		}
		if entry == nil || entry.broadcast == nil {
			continue
		}
		entry.counts[r.Emoji]++
		entry.total++
	}

	entries := make([]*digestEntry, 0, len(byBroadcast))
	for _, e := range byBroadcast {
		if e.broadcast != nil && e.total > 0 {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].total != entries[j].total {
			return entries[i].total > entries[j].total
		}
		return entries[i].broadcast.CreatedAt.After(entries[j].broadcast.CreatedAt)
	})

	return entries, ids
}

func formatPauseDigest(entries []*digestEntry) string {
	var sb strings.Builder
	sb.WriteString("Reaction roundup:\n")
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("%s to \"%s\" (%s)\n",
			reaction.FormatCounts(e.counts),
			messageSnippet(e.broadcast.Body, 40),
			e.broadcast.SenderName))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatDailyDigest(entries []*digestEntry) string {
	var sb strings.Builder
	sb.WriteString("Today's reactions:\n")
	for i, e := range entries {
		sb.WriteString(fmt.Sprintf("%d. \"%s\" (%s): %s\n",
			i+1,
			messageSnippet(e.broadcast.Body, 40),
			e.broadcast.SenderName,
			reaction.FormatCounts(e.counts)))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func messageSnippet(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
