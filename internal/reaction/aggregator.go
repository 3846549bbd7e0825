package reaction

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"broadcast-service/internal/domain"
	"broadcast-service/pkg/xerrors"
)

// reactionStore is the slice of the ledger the aggregator mutates.
type reactionStore interface {
	GetReaction(ctx context.Context, broadcastID, reactorAddress string) (*domain.Reaction, error)
	UpsertReaction(ctx context.Context, r *domain.Reaction) (*domain.Reaction, error)
	ActiveReactionCounts(ctx context.Context, broadcastID string) (map[string]int, error)
	UpdateSummary(ctx context.Context, id, summary string, at time.Time) error
}

// Result is what a reaction mutation produced. SendUpdate tells the
// caller whether the new summary is worth a re-broadcast; dispatch is the
// caller's job, never this package's.
type Result struct {
	Action      domain.ReactionAction
	Summary     string
	TotalActive int
	SendUpdate  bool
}

// Aggregator applies reactions to the ledger with toggle, replace and
// remove semantics, keeping each broadcast's summary in step.
type Aggregator struct {
	store  reactionStore
	logger *zap.Logger
	locks  sync.Map // "broadcastID|reactor" -> *sync.Mutex
}

func NewAggregator(store reactionStore, logger *zap.Logger) *Aggregator {
	return &Aggregator{store: store, logger: logger}
}

// Apply mutates the single (broadcast, reactor) reaction row:
//
//	no row            -> insert active
//	active, same      -> toggle off
//	inactive, same    -> toggle back on
//	any, different    -> replace, remembering the previous emoji
//
// The summary is recomputed synchronously from the active rows so it is
// never stale relative to the mutation.
func (a *Aggregator) Apply(ctx context.Context, b *domain.Broadcast, reactorAddress, reactorName, emoji string) (*Result, error) {
	mu := a.lockFor(b.ID + "|" + reactorAddress)
	mu.Lock()
	defer mu.Unlock()

	existing, err := a.store.GetReaction(ctx, b.ID, reactorAddress)
	if err != nil && !errors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}

	next := &domain.Reaction{
		BroadcastID:    b.ID,
		ReactorAddress: reactorAddress,
		ReactorName:    reactorName,
		Emoji:          emoji,
		IsActive:       true,
	}

	var action domain.ReactionAction
	switch {
	case existing == nil:
		action = domain.ReactionAdded
	case existing.Emoji == emoji && existing.IsActive:
		action = domain.ReactionRemoved
		next.IsActive = false
		next.PreviousEmoji = existing.PreviousEmoji
	case existing.Emoji == emoji && !existing.IsActive:
		action = domain.ReactionAdded
		next.PreviousEmoji = existing.PreviousEmoji
	default:
		action = domain.ReactionChanged
		next.PreviousEmoji = existing.Emoji
	}

	if _, err := a.store.UpsertReaction(ctx, next); err != nil {
		return nil, err
	}

	counts, err := a.store.ActiveReactionCounts(ctx, b.ID)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	summary := FormatSummary(counts)

	now := time.Now()
	if err := a.store.UpdateSummary(ctx, b.ID, summary, now); err != nil {
		return nil, err
	}

	// The timing policy sees the pre-mutation update timestamp; the one
	// we just wrote would make the elapsed-time rule vacuous.
	send := ShouldSendUpdate(total, action, b.LastReactionUpdate, now)

	a.logger.Info("reaction applied",
		zap.String("broadcast_id", b.ID),
		zap.String("action", string(action)),
		zap.Int("total_active", total),
		zap.Bool("send_update", send))

	return &Result{
		Action:      action,
		Summary:     summary,
		TotalActive: total,
		SendUpdate:  send,
	}, nil
}

func (a *Aggregator) lockFor(key string) *sync.Mutex {
	v, _ := a.locks.LoadOrStore(key, &sync.Mutex{})
	return v.(*sync.Mutex)
}
