package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"broadcast-service/internal/domain"
	"broadcast-service/pkg/xerrors"
)

type memberRepo struct {
	db *pgxpool.Pool
}

func NewDirectoryRepository(db *pgxpool.Pool) DirectoryRepository {
	return &memberRepo{db: db}
}

func (p *memberRepo) ActiveRecipients(ctx context.Context, exclude string) ([]*domain.Member, error) {
	query := `
		SELECT id, phone_number, name, is_admin, active, created_at
		FROM members
		WHERE active = TRUE
		  AND ($1 = '' OR phone_number != $1)
		ORDER BY id
	`

	rows, err := p.db.Query(ctx, query, exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*domain.Member
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.ID, &m.Address, &m.Name, &m.IsAdmin, &m.Active, &m.CreatedAt); err != nil {
			return nil, err
		}
		members = append(members, &m)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return members, nil
}

func (p *memberRepo) GetMember(ctx context.Context, address string) (*domain.Member, error) {
	query := `
		SELECT id, phone_number, name, is_admin, active, created_at
		FROM members
		WHERE phone_number = $1 AND active = TRUE
	`

	var m domain.Member
	err := p.db.QueryRow(ctx, query, address).Scan(&m.ID, &m.Address, &m.Name, &m.IsAdmin, &m.Active, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, err
	}

	return &m, nil
}

func (p *memberRepo) UpsertMember(ctx context.Context, m *domain.Member) error {
	query := `
		INSERT INTO members (phone_number, name, is_admin, active)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (phone_number) DO UPDATE
		SET name = EXCLUDED.name,
		    is_admin = EXCLUDED.is_admin,
		    active = TRUE
	`

	_, err := p.db.Exec(ctx, query, m.Address, m.Name, m.IsAdmin)
	return err
}

func (p *memberRepo) CountActive(ctx context.Context) (int, error) {
	var count int
	err := p.db.QueryRow(ctx, `SELECT COUNT(*) FROM members WHERE active = TRUE`).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
