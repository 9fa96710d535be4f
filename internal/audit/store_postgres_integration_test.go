//go:build integration

package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"velos/internal/audit"
	"velos/pkg/testutil/containers"
)

func TestPostgresStore(t *testing.T) {
	pc := containers.NewPostgresContainer(t)
	ctx := context.Background()

	store := audit.NewPostgresStore(pc.DB)
	require.NoError(t, store.Migrate(ctx))

	entries := []audit.Entry{
		{Seq: 1, Timestamp: time.Now().UTC(), Actor: "api", Action: audit.ActionPipelineStarted, Subject: "cand-1"},
		{Seq: 2, Timestamp: time.Now().UTC(), Actor: "gatekeeper", Action: audit.ActionStagePassed, Subject: "cand-1"},
		{Seq: 3, Timestamp: time.Now().UTC(), Actor: "api", Action: audit.ActionPipelineStarted, Subject: "cand-2"},
	}
	for _, e := range entries {
		require.NoError(t, store.Append(ctx, e))
	}

	t.Run("lists all entries in seq order", func(t *testing.T) {
		got, err := store.List(ctx, "", 0)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, uint64(1), got[0].Seq)
		assert.Equal(t, uint64(3), got[2].Seq)
	})

	t.Run("filters by subject", func(t *testing.T) {
		got, err := store.List(ctx, "cand-1", 0)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, audit.ActionStagePassed, got[1].Action)
	})

	t.Run("applies limit", func(t *testing.T) {
		got, err := store.List(ctx, "", 2)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("duplicate seq rejected", func(t *testing.T) {
		err := store.Append(ctx, audit.Entry{Seq: 1, Timestamp: time.Now().UTC(), Actor: "api", Action: audit.ActionPipelineStarted, Subject: "cand-3"})
		require.Error(t, err)
	})
}
