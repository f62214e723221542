package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking/internal/database/dbtest"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/utils"
)

func TestUserCreateAndLookup(t *testing.T) {
	users := NewUserRepo(dbtest.Open(t))
	ctx := context.Background()

	id, err := users.Create(ctx, "  Ada@Example.com ", "pw-123456", model.RoleCustomer, 4)
	require.NoError(t, err)

	u, err := users.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.True(t, u.IsActive)
	assert.True(t, utils.VerifyPassword(u.PasswordHash, "pw-123456"))

	_, err = users.Create(ctx, "ADA@example.com", "other", model.RoleCustomer, 4)
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	users := NewUserRepo(dbtest.Open(t))
	ctx := context.Background()

	created, err := users.EnsureAdmin(ctx, "root@example.com", "pw", 4)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = users.EnsureAdmin(ctx, "root@example.com", "pw", 4)
	require.NoError(t, err)
	assert.False(t, created)

	u, err := users.GetByEmail(ctx, "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, u.Role)
}

func TestRefreshTokenLifecycle(t *testing.T) {
	db := dbtest.Open(t)
	users, tokens := NewUserRepo(db), NewTokenRepo(db)
	ctx := context.Background()
	uid, err := users.Create(ctx, "ada@example.com", "pw", model.RoleCustomer, 4)
	require.NoError(t, err)

	require.NoError(t, tokens.StoreRefresh(ctx, uid, "h1", time.Now().Add(time.Hour)))
	require.NoError(t, tokens.StoreRefresh(ctx, uid, "h2", time.Now().Add(time.Hour)))
	require.NoError(t, tokens.StoreRefresh(ctx, uid, "old", time.Now().Add(-time.Hour)))

	got, err := tokens.ValidateRefresh(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, uid, got)

	_, err = tokens.ValidateRefresh(ctx, "old")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, tokens.RevokeByHash(ctx, "h1"))
	_, err = tokens.ValidateRefresh(ctx, "h1")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, tokens.RevokeAllForUser(ctx, uid))
	_, err = tokens.ValidateRefresh(ctx, "h2")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestPruneStaleTokens(t *testing.T) {
	db := dbtest.Open(t)
	users, tokens := NewUserRepo(db), NewTokenRepo(db)
	ctx := context.Background()
	uid, err := users.Create(ctx, "ada@example.com", "pw", model.RoleCustomer, 4)
	require.NoError(t, err)

	require.NoError(t, tokens.StoreRefresh(ctx, uid, "live", time.Now().Add(time.Hour)))
	require.NoError(t, tokens.StoreRefresh(ctx, uid, "expired", time.Now().Add(-2*time.Hour)))
	require.NoError(t, tokens.StoreRefresh(ctx, uid, "revoked", time.Now().Add(time.Hour)))
	require.NoError(t, tokens.RevokeByHash(ctx, "revoked"))

	n, err := tokens.PruneStale(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = tokens.PruneStale(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := tokens.ValidateRefresh(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, uid, got)
	var left int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM refresh_tokens").Scan(&left))
	assert.Equal(t, 1, left)
}
