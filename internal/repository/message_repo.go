package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"broadcast-service/internal/domain"
	"broadcast-service/pkg/xerrors"
)

const broadcastColumns = `
	id, sender_address, sender_name, body,
	reaction_summary, last_reaction_update, created_at`

type messageRepo struct {
	db *pgxpool.Pool
}

func NewLedgerRepository(db *pgxpool.Pool) LedgerRepository {
	return &messageRepo{db: db}
}

func scanBroadcast(row pgx.Row) (*domain.Broadcast, error) {
	var b domain.Broadcast
	err := row.Scan(
		&b.ID,
		&b.SenderAddress,
		&b.SenderName,
		&b.Body,
		&b.ReactionSummary,
		&b.LastReactionUpdate,
		&b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (p *messageRepo) SaveBroadcast(ctx context.Context, b *domain.Broadcast) (*domain.Broadcast, error) {
	query := `
		INSERT INTO broadcasts (id, sender_address, sender_name, body)
		VALUES ($1, $2, $3, $4)
		RETURNING` + broadcastColumns

	created, err := scanBroadcast(p.db.QueryRow(ctx, query, b.ID, b.SenderAddress, b.SenderName, b.Body))
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (p *messageRepo) GetBroadcast(ctx context.Context, id string) (*domain.Broadcast, error) {
	query := `SELECT` + broadcastColumns + ` FROM broadcasts WHERE id = $1`

	b, err := scanBroadcast(p.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (p *messageRepo) RecentBroadcasts(ctx context.Context, since time.Time, excludeSender string, limit int) ([]*domain.Broadcast, error) {
	query := `
		SELECT` + broadcastColumns + `
		FROM broadcasts
		WHERE created_at >= $1
		  AND ($2 = '' OR sender_address != $2)
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := p.db.Query(ctx, query, since, excludeSender, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectBroadcasts(rows)
}

func (p *messageRepo) ListRecent(ctx context.Context, limit int) ([]*domain.Broadcast, error) {
	query := `
		SELECT` + broadcastColumns + `
		FROM broadcasts
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := p.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectBroadcasts(rows)
}

func collectBroadcasts(rows pgx.Rows) ([]*domain.Broadcast, error) {
	var broadcasts []*domain.Broadcast
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			return nil, err
		}
		broadcasts = append(broadcasts, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return broadcasts, nil
}

func (p *messageRepo) CountBroadcastsSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := p.db.QueryRow(ctx, `SELECT COUNT(*) FROM broadcasts WHERE created_at >= $1`, since).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (p *messageRepo) UpdateSummary(ctx context.Context, id, summary string, at time.Time) error {
	query := `
		UPDATE broadcasts
		SET reaction_summary = $1,
		    last_reaction_update = $2
		WHERE id = $3
	`

	ct, err := p.db.Exec(ctx, query, summary, at, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

const reactionColumns = `
	id, broadcast_id, reactor_address, reactor_name, emoji,
	previous_emoji, is_active, processed, created_at, updated_at`

func scanReaction(row pgx.Row) (*domain.Reaction, error) {
	var r domain.Reaction
	err := row.Scan(
		&r.ID,
		&r.BroadcastID,
		&r.ReactorAddress,
		&r.ReactorName,
		&r.Emoji,
		&r.PreviousEmoji,
		&r.IsActive,
		&r.Processed,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (p *messageRepo) GetReaction(ctx context.Context, broadcastID, reactorAddress string) (*domain.Reaction, error) {
	query := `
		SELECT` + reactionColumns + `
		FROM reactions
		WHERE broadcast_id = $1 AND reactor_address = $2
	`

	r, err := scanReaction(p.db.QueryRow(ctx, query, broadcastID, reactorAddress))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

// UpsertReaction writes the single row for (broadcast_id, reactor_address).
// The unique constraint makes a concurrent double-react collapse onto one row.
func (p *messageRepo) UpsertReaction(ctx context.Context, r *domain.Reaction) (*domain.Reaction, error) {
	query := `
		INSERT INTO reactions (broadcast_id, reactor_address, reactor_name, emoji, previous_emoji, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (broadcast_id, reactor_address) DO UPDATE
		SET emoji = EXCLUDED.emoji,
		    previous_emoji = EXCLUDED.previous_emoji,
		    is_active = EXCLUDED.is_active,
		    reactor_name = EXCLUDED.reactor_name,
		    updated_at = NOW()
		RETURNING` + reactionColumns

	row := p.db.QueryRow(ctx, query,
		r.BroadcastID,
		r.ReactorAddress,
		r.ReactorName,
		r.Emoji,
		r.PreviousEmoji,
		r.IsActive,
	)

	return scanReaction(row)
}

func (p *messageRepo) ActiveReactionCounts(ctx context.Context, broadcastID string) (map[string]int, error) {
	query := `
		SELECT emoji, COUNT(*)
		FROM reactions
		WHERE broadcast_id = $1 AND is_active = TRUE
		GROUP BY emoji
	`

	rows, err := p.db.Query(ctx, query, broadcastID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var emoji string
		var count int
		if err := rows.Scan(&emoji, &count); err != nil {
			return nil, err
		}
		counts[emoji] = count
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return counts, nil
}

func (p *messageRepo) UnprocessedReactions(ctx context.Context, since time.Time) ([]*domain.Reaction, error) {
	query := `
		SELECT` + reactionColumns + `
		FROM reactions
		WHERE is_active = TRUE
		  AND processed = FALSE
		  AND created_at >= $1
		ORDER BY created_at
	`

	rows, err := p.db.Query(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reactions []*domain.Reaction
	for rows.Next() {
		r, err := scanReaction(rows)
		if err != nil {
			return nil, err
		}
		reactions = append(reactions, r)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return reactions, nil
}

// MarkProcessed is monotonic: processed never goes back to false, so a
// reaction included in one digest is never reconsidered by a later one.
func (p *messageRepo) MarkProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.db.Exec(ctx, `UPDATE reactions SET processed = TRUE WHERE id = ANY($1)`, ids)
	return err
}

func (p *messageRepo) CountReactionsSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := p.db.QueryRow(ctx, `SELECT COUNT(*) FROM reactions WHERE created_at >= $1`, since).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (p *messageRepo) SaveDeliveryAttempts(ctx context.Context, attempts []*domain.DeliveryAttempt) error {
	if len(attempts) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO delivery_attempts (message_id, recipient_address, status, provider_id, error, duration_ms, retry_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, a := range attempts {
		batch.Queue(query, a.MessageID, a.RecipientAddress, a.Status, a.ProviderID, a.Error, a.DurationMs, a.RetryCount)
	}

	br := p.db.SendBatch(ctx, batch)
	defer br.Close()

	for range attempts {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
