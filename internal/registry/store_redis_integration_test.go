//go:build integration

package registry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	platformredis "velos/internal/platform/redis"
	"velos/internal/registry"
	"velos/pkg/platform/sentinel"
	"velos/pkg/testutil/containers"
)

func TestRedisRevocationStore(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	store := registry.NewRedisRevocationStore(&platformredis.Client{Client: rc.Client})

	t.Run("missing credential returns not found", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))

		_, err := store.Get(ctx, "vc-missing")
		assert.True(t, errors.Is(err, sentinel.ErrNotFound))
	})

	t.Run("put then get round-trips", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))

		rec := registry.RevocationRecord{
			CredentialID: "vc-1",
			Reason:       "issued in error",
			RevokedAt:    time.Now().UTC().Truncate(time.Millisecond),
		}
		require.NoError(t, store.Put(ctx, rec))

		got, err := store.Get(ctx, "vc-1")
		require.NoError(t, err)
		assert.Equal(t, rec.Reason, got.Reason)
		assert.True(t, rec.RevokedAt.Equal(got.RevokedAt))
	})

	t.Run("second put keeps first record", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))

		first := registry.RevocationRecord{CredentialID: "vc-2", Reason: "first", RevokedAt: time.Now().UTC()}
		require.NoError(t, store.Put(ctx, first))
		require.NoError(t, store.Put(ctx, registry.RevocationRecord{CredentialID: "vc-2", Reason: "second", RevokedAt: time.Now().UTC()}))

		got, err := store.Get(ctx, "vc-2")
		require.NoError(t, err)
		assert.Equal(t, "first", got.Reason)
	})
}
