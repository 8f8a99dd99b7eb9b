//go:build integration

package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-bot-dashboard/backend/internal/audit/domain"
	"trading-bot-dashboard/backend/internal/audit/repository"
	"trading-bot-dashboard/backend/internal/db/dbtest"
)

func TestPostgresRepository_ListByUser(t *testing.T) {
	conn := dbtest.Start(t)
	repo := repository.NewPostgresRepository(conn)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, &domain.AuditLog{
			ID:        fmt.Sprintf("a%d", i),
			UserID:    "u1",
			Action:    domain.ActionLoginSuccess,
			Resource:  domain.ResourceSession,
			IP:        "203.0.113.4",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, repo.Create(ctx, &domain.AuditLog{
		ID: "anon", Action: domain.ActionLoginFailure, Resource: domain.ResourceUser, IP: "unknown", CreatedAt: base,
	}))

	logs, err := repo.ListByUser(ctx, "u1", 2, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "a2", logs[0].ID, "newest first")

	logs, err = repo.ListByUser(ctx, "u1", 10, 2)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "a0", logs[0].ID)
}
