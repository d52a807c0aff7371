// Package subscription reads billing state for a user.
package subscription

import (
	"context"
	"database/sql"
	"errors"

	apperrors "entitlement-workers/internal/common/errors"
	"entitlement-workers/internal/models"
)

// Repository finds at most one subscription per user. A user with no record yields (nil, nil).
type Repository interface {
	FindByUserID(ctx context.Context, userID string) (*models.Subscription, error)
}

const findByUserIDQuery = `SELECT stripe_price_id, stripe_current_period_end FROM user_subscriptions WHERE user_id = $1`

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) FindByUserID(ctx context.Context, userID string) (*models.Subscription, error) {
	var (
		priceID   sql.NullString
		periodEnd sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, findByUserIDQuery, userID).Scan(&priceID, &periodEnd)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.NewSubscriptionLookupFailedError(userID, err)
	}

	sub := &models.Subscription{UserID: userID}
	if priceID.Valid {
		sub.StripePriceID = &priceID.String
	}
	if periodEnd.Valid {
		sub.StripeCurrentPeriodEnd = &periodEnd.Time
	}
	return sub, nil
}
