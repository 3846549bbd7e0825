package repository

import (
	"context"
	"time"

	"broadcast-service/internal/domain"
)

// DirectoryRepository resolves the roster and sender identities.
type DirectoryRepository interface {
	// ActiveRecipients returns every active member, excluding the given
	// address when non-empty.
	ActiveRecipients(ctx context.Context, exclude string) ([]*domain.Member, error)
	GetMember(ctx context.Context, address string) (*domain.Member, error)
	UpsertMember(ctx context.Context, m *domain.Member) error
	CountActive(ctx context.Context) (int, error)
}

// LedgerRepository is the append-only store of broadcasts plus the
// keyed reaction store and delivery log.
type LedgerRepository interface {
	// Broadcasts
	SaveBroadcast(ctx context.Context, b *domain.Broadcast) (*domain.Broadcast, error)
	GetBroadcast(ctx context.Context, id string) (*domain.Broadcast, error)
	RecentBroadcasts(ctx context.Context, since time.Time, excludeSender string, limit int) ([]*domain.Broadcast, error)
	ListRecent(ctx context.Context, limit int) ([]*domain.Broadcast, error)
	CountBroadcastsSince(ctx context.Context, since time.Time) (int, error)
	UpdateSummary(ctx context.Context, id, summary string, at time.Time) error

	// Reactions, unique per (broadcast_id, reactor_address)
	GetReaction(ctx context.Context, broadcastID, reactorAddress string) (*domain.Reaction, error)
	UpsertReaction(ctx context.Context, r *domain.Reaction) (*domain.Reaction, error)
	ActiveReactionCounts(ctx context.Context, broadcastID string) (map[string]int, error)
	UnprocessedReactions(ctx context.Context, since time.Time) ([]*domain.Reaction, error)
	MarkProcessed(ctx context.Context, ids []int64) error
	CountReactionsSince(ctx context.Context, since time.Time) (int, error)

	// Delivery log
	SaveDeliveryAttempts(ctx context.Context, attempts []*domain.DeliveryAttempt) error
}
