package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"homefeed/internal/model"
)

type accountRepository struct {
	db *sqlx.DB
}

func NewAccountRepository(db *sqlx.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(ctx context.Context, account *model.Account) error {
	query := `
		INSERT INTO accounts (username, display_name)
		VALUES ($1, $2)
		RETURNING id, username, display_name, followers_count, following_count, posts_count, created_at, updated_at
	`
	err := r.db.GetContext(ctx, account, query, account.Username, account.DisplayName)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return model.ErrUsernameExists
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *accountRepository) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	query := `
		SELECT id, username, display_name, followers_count, following_count, posts_count, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`
	var account model.Account
	err := r.db.GetContext(ctx, &account, query, id)
	if err == sql.ErrNoRows {
		return nil, model.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &account, nil
}

func (r *accountRepository) GetSummaries(ctx context.Context, ids []int64) (map[int64]model.AccountSummary, error) {
	result := make(map[int64]model.AccountSummary, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := `SELECT id, username, display_name FROM accounts WHERE id = ANY($1)`
	var summaries []model.AccountSummary
	err := r.db.SelectContext(ctx, &summaries, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get account summaries: %w", err)
	}

	for _, s := range summaries {
		result[s.ID] = s
	}
	return result, nil
}

func (r *accountRepository) AdjustFollowersCount(ctx context.Context, tx *sqlx.Tx, id int64, delta int) error {
	return r.adjust(ctx, tx, "followers_count", id, delta)
}

func (r *accountRepository) AdjustFollowingCount(ctx context.Context, tx *sqlx.Tx, id int64, delta int) error {
	return r.adjust(ctx, tx, "following_count", id, delta)
}

func (r *accountRepository) AdjustPostsCount(ctx context.Context, tx *sqlx.Tx, id int64, delta int) error {
	return r.adjust(ctx, tx, "posts_count", id, delta)
}

// adjust applies a relative delta in the caller's transaction. The column
// name comes from the three fixed callers above, never from input.
func (r *accountRepository) adjust(ctx context.Context, tx *sqlx.Tx, column string, id int64, delta int) error {
	query := fmt.Sprintf(`UPDATE accounts SET %s = %s + $1, updated_at = NOW() WHERE id = $2`, column, column)
	result, err := tx.ExecContext(ctx, query, delta, id)
	if err != nil {
		return fmt.Errorf("adjust %s: %w", column, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return model.ErrAccountNotFound
	}
	return nil
}

// RecountTotals rewrites all three counters from the source-of-truth
// tables in one statement. Safe to run at any time, concurrently with the
// delta path: the subselects and the write execute under one snapshot.
func (r *accountRepository) RecountTotals(ctx context.Context, id int64) (*model.CounterTotals, error) {
	query := `
		UPDATE accounts SET
			followers_count = (SELECT COUNT(*) FROM follows WHERE followed_id = accounts.id),
			following_count = (SELECT COUNT(*) FROM follows WHERE follower_id = accounts.id),
			posts_count     = (SELECT COUNT(*) FROM posts WHERE author_id = accounts.id),
			updated_at = NOW()
		WHERE id = $1
		RETURNING id AS account_id, followers_count, following_count, posts_count
	`
	var totals model.CounterTotals
	err := r.db.GetContext(ctx, &totals, query, id)
	if err == sql.ErrNoRows {
		return nil, model.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("recount totals: %w", err)
	}
	return &totals, nil
}

func (r *accountRepository) Delete(ctx context.Context, tx *sqlx.Tx, id int64) error {
	result, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return model.ErrAccountNotFound
	}
	return nil
}
