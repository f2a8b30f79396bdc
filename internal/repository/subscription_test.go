package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saasplatform/backend/internal/domain"
)

// Runs against a disposable database named by TEST_DATABASE_URL.
func TestSubscriptionRepository_Postgres(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := NewDB(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, RunMigrations(ctx, pool))

	repo := NewSubscriptionRepository(pool)

	sub := newSub("pgco")
	require.NoError(t, repo.Create(ctx, sub))
	require.NotZero(t, sub.ID)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), "DELETE FROM subscriptions WHERE id = $1", sub.ID)
	})

	got, err := repo.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "pgco", got.CompanyName)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Nil(t, got.ResourceGroupName)

	rg, link := "rg-saas-pgco-1", "https://app-pgco-1.azurewebsites.net"
	got.Status = domain.StatusActive
	got.ResourceGroupName, got.DeploymentURL = &rg, &link
	require.NoError(t, repo.Update(ctx, got))

	again, err := repo.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, again.Status)
	require.NotNil(t, again.DeploymentURL)
	assert.Equal(t, link, *again.DeploymentURL)

	missing, err := repo.GetByID(ctx, -1)
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = repo.Update(ctx, &domain.Subscription{ID: -1, Status: domain.StatusFailed, Tier: domain.TierBasic})
	assert.True(t, domain.IsNotFound(err))

	subs, err := repo.List(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, subs)

	require.NoError(t, repo.Delete(ctx, sub.ID))
	gone, err := repo.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	assert.True(t, domain.IsNotFound(repo.Delete(ctx, sub.ID)))
}
