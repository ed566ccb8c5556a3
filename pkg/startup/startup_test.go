package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStartup(maxAttempts int) *Startup {
	s := NewStartup(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}), maxAttempts)
	s.unit = time.Millisecond
	return s
}

func TestStartup(t *testing.T) {
	ctx := context.Background()

	t.Run("starts in dependency order and stops in reverse", func(t *testing.T) {
		var events []string
		record := func(name string) Func {
			return Func{
				Name:    name,
				OnStart: func(context.Context) error { events = append(events, "start "+name); return nil },
				OnStop:  func(context.Context) error { events = append(events, "stop "+name); return nil },
			}
		}

		s := newTestStartup(1)
		http := record("http")
		http.Requires = []string{"services"}
		services := record("services")
		services.Requires = []string{"database", "migrations"}
		migrations := record("migrations")
		migrations.Requires = []string{"database"}
		s.AddDependency(http)
		s.AddDependency(services)
		s.AddDependency(migrations)
		s.AddDependency(record("database"))

		require.NoError(t, s.Start(ctx))
		require.NoError(t, s.Stop(ctx))
		assert.Equal(t, []string{
			"start database", "start migrations", "start services", "start http",
			"stop http", "stop services", "stop migrations", "stop database",
		}, events)
	})

	t.Run("retries failed dependencies only", func(t *testing.T) {
		dbStarts, cacheStarts := 0, 0
		s := newTestStartup(3)
		s.AddDependency(Func{Name: "database", OnStart: func(context.Context) error {
			dbStarts++
			return nil
		}})
		s.AddDependency(Func{Name: "redis", OnStart: func(context.Context) error {
			cacheStarts++
			if cacheStarts < 3 {
				return errors.New("connection refused")
			}
			return nil
		}})

		require.NoError(t, s.Start(ctx))
		assert.Equal(t, 1, dbStarts)
		assert.Equal(t, 3, cacheStarts)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		s := newTestStartup(2)
		s.AddDependency(Func{Name: "graph", OnStart: func(context.Context) error {
			return errors.New("unreachable")
		}})

		err := s.Start(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "after 2 attempts")
	})

	t.Run("unknown dependency", func(t *testing.T) {
		s := newTestStartup(1)
		s.AddDependency(Func{Name: "services", Requires: []string{"database"}})

		err := s.Start(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown startup dependency 'database'")
	})

	t.Run("cycle", func(t *testing.T) {
		s := newTestStartup(1)
		s.AddDependency(Func{Name: "a", Requires: []string{"b"}})
		s.AddDependency(Func{Name: "b", Requires: []string{"a"}})

		err := s.Start(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cycle")
	})
}
