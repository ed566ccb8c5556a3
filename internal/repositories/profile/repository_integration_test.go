//go:build integration

package profile_test

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/repositories/audit"
	"github.com/Ramsey-B/fern/internal/repositories/profile"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/encryption"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/testutil/containers"
)

func TestProfileRepository(t *testing.T) {
	pg := containers.NewPostgresContainer(t, "../../../db/pg")
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	ctx := context.Background()

	profiles := profile.NewRepository(pg.DB, logger)
	audits := audit.NewRepository(pg.DB, logger)
	tx := database.NewTransactor(pg.DB, database.Serializable, logger)

	t.Run("create is idempotent", func(t *testing.T) {
		pg.Truncate(t, "profile_audit_log", "profiles")

		created, err := profiles.Create(ctx, &models.ProfileRecord{PersonID: "p1"})
		require.NoError(t, err)
		assert.True(t, created)

		created, err = profiles.Create(ctx, &models.ProfileRecord{PersonID: "p1"})
		require.NoError(t, err)
		assert.False(t, created)

		record, err := profiles.Get(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 1, record.Version)
		assert.JSONEq(t, `{}`, string(record.Fields))
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := profiles.Get(ctx, "nobody")
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))

		record, err := profiles.GetForUpdate(ctx, "nobody")
		require.NoError(t, err)
		assert.Nil(t, record)
	})

	t.Run("merge end to end", func(t *testing.T) {
		pg.Truncate(t, "profile_audit_log", "profiles")

		engine := merging.NewEngine(logger, profiles, audits, tx, encryption.Plaintext{})

		res, err := engine.MergeToProfile(ctx, "p2", map[string]any{"fullName": "John Smith", "dob": "1990-03-15"}, "doc-1",
			map[string]float64{"fullName": 90})
		require.NoError(t, err)
		assert.True(t, res.NewProfileCreated)
		assert.Equal(t, 2, res.FieldsUpdated)

		res, err = engine.MergeToProfile(ctx, "p2", map[string]any{"fullName": "Jon Smith"}, "doc-2",
			map[string]float64{"fullName": 70})
		require.NoError(t, err)
		assert.Equal(t, []string{"fullName"}, res.SkippedFields)

		got, err := engine.GetProfile(ctx, "p2")
		require.NoError(t, err)
		assert.Equal(t, "John Smith", got.Fields["fullName"].Value)
		assert.Equal(t, 2, got.Version)

		history, err := audits.ListByProfile(ctx, "p2", 0, 0)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, "dob", history[0].FieldName)
		assert.Equal(t, models.AuditActionCreate, history[0].Action)
	})

	t.Run("concurrent merges for one person", func(t *testing.T) {
		pg.Truncate(t, "profile_audit_log", "profiles")

		engine := merging.NewEngine(logger, profiles, audits, tx, encryption.Plaintext{})
		fields := []string{"a", "b", "c", "d", "e"}

		var wg sync.WaitGroup
		for _, f := range fields {
			wg.Add(1)
			go func(field string) {
				defer wg.Done()
				for {
					_, err := engine.MergeToProfile(ctx, "p3", map[string]any{field: "v"}, "doc-"+field, nil)
					if err == nil || !database.IsSerializationFailure(err) {
						assert.NoError(t, err)
						return
					}
				}
			}(f)
		}
		wg.Wait()

		got, err := engine.GetProfile(ctx, "p3")
		require.NoError(t, err)
		assert.Len(t, got.Fields, len(fields))

		history, err := audits.ListByProfile(ctx, "p3", 0, 0)
		require.NoError(t, err)
		assert.Len(t, history, len(fields))
	})
}
