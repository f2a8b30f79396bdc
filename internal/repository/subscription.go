package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saasplatform/backend/internal/domain"
)

const subscriptionColumns = `id, company_name, contact_email, contact_person, business_type,
	status, tier, resource_group_name, deployment_url, created_at, updated_at`

// SubscriptionRepository handles database operations for subscriptions.
type SubscriptionRepository struct {
	db *pgxpool.Pool
}

// NewSubscriptionRepository creates a new SubscriptionRepository.
func NewSubscriptionRepository(db *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Create inserts sub and fills in its generated id and timestamps.
func (r *SubscriptionRepository) Create(ctx context.Context, sub *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (company_name, contact_email, contact_person, business_type, status, tier)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		sub.CompanyName, sub.ContactEmail, sub.ContactPerson, sub.BusinessType,
		string(sub.Status), string(sub.Tier),
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// GetByID returns the subscription with id, or nil if there is none.
func (r *SubscriptionRepository) GetByID(ctx context.Context, id int) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	sub, err := scanSubscription(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}
	return sub, nil
}

// List returns every subscription, newest first.
func (r *SubscriptionRepository) List(ctx context.Context) ([]*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions ORDER BY created_at DESC, id DESC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// Update writes every mutable field of sub in one statement.
func (r *SubscriptionRepository) Update(ctx context.Context, sub *domain.Subscription) error {
	query := `
		UPDATE subscriptions
		SET company_name = $2, contact_email = $3, contact_person = $4, business_type = $5,
			status = $6, tier = $7, resource_group_name = $8, deployment_url = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		sub.ID, sub.CompanyName, sub.ContactEmail, sub.ContactPerson, sub.BusinessType,
		string(sub.Status), string(sub.Tier), sub.ResourceGroupName, sub.DeploymentURL,
	).Scan(&sub.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound(fmt.Sprintf("subscription %d not found", sub.ID))
		}
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	return nil
}

// Delete removes the subscription row.
func (r *SubscriptionRepository) Delete(ctx context.Context, id int) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound(fmt.Sprintf("subscription %d not found", id))
	}
	return nil
}

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var (
		sub          domain.Subscription
		status, tier string
	)
	err := row.Scan(
		&sub.ID, &sub.CompanyName, &sub.ContactEmail, &sub.ContactPerson, &sub.BusinessType,
		&status, &tier, &sub.ResourceGroupName, &sub.DeploymentURL, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.Status = domain.SubscriptionStatus(status)
	sub.Tier = domain.SubscriptionTier(tier)
	return &sub, nil
}
