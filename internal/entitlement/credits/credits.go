// Package credits implements the credit-based entitlement check.
package credits

import (
	"context"
	"database/sql"
	"errors"

	apperrors "entitlement-workers/internal/common/errors"
	"entitlement-workers/internal/models"
)

// Repository finds the credit record of a user. No record yields (nil, nil).
type Repository interface {
	FindByUserID(ctx context.Context, userID string) (*models.CreditRecord, error)
}

const findByUserIDQuery = `SELECT used_credits FROM user_credits WHERE user_id = $1`

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) FindByUserID(ctx context.Context, userID string) (*models.CreditRecord, error) {
	rec := &models.CreditRecord{UserID: userID}

	err := r.db.QueryRowContext(ctx, findByUserIDQuery, userID).Scan(&rec.UsedCredits)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.NewCreditLookupFailedError(userID, err)
	}
	return rec, nil
}

// Evaluator decides whether a credit record entitles its owner.
//
// With Limit 0 any record entitles, whatever UsedCredits says. A positive Limit additionally
// requires UsedCredits < Limit.
type Evaluator struct {
	Limit int
}

func (e Evaluator) HasCredits(rec *models.CreditRecord) bool {
	if rec == nil {
		return false
	}
	if e.Limit <= 0 {
		return true
	}
	return rec.UsedCredits < e.Limit
}

// Reason explains the HasCredits outcome.
func (e Evaluator) Reason(rec *models.CreditRecord) string {
	switch {
	case rec == nil:
		return "no_record"
	case e.HasCredits(rec):
		return "has_credits"
	default:
		return "limit_reached"
	}
}
