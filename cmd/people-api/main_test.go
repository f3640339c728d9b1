package main

import (
	"context"
	"flag"
	"path/filepath"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/Sternrassler/people-cache/internal/testutil"
	"github.com/Sternrassler/people-cache/pkg/cache"
	"github.com/Sternrassler/people-cache/pkg/dao"
	"github.com/Sternrassler/people-cache/pkg/models"
	"github.com/Sternrassler/people-cache/pkg/storage"
)

func countPeople(t *testing.T, dbURL string) int64 {
	t.Helper()

	db, err := storage.SetupDatabase(dbURL, 1, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqldb, err := db.DB(); err == nil {
			sqldb.Close()
		}
	})

	n, err := storage.NewPeople(db).Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestRun_MigrateAndSeed(t *testing.T) {
	dbURL := "sqlite://" + filepath.Join(t.TempDir(), "people.sqlite")

	require.NoError(t, run([]string{"people-api", "--db-url", dbURL, "--log-level", "error", "migrate"}))
	assert.EqualValues(t, 0, countPeople(t, dbURL))

	require.NoError(t, run([]string{"people-api", "--db-url", dbURL, "--log-level", "error", "seed", "-n", "12", "-j", "3"}))
	assert.EqualValues(t, 12, countPeople(t, dbURL))
}

func TestRun_RejectsUnknownLogLevel(t *testing.T) {
	err := run([]string{"people-api", "--log-level", "loud", "migrate"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loud")
}

func TestRun_RejectsUnknownDatabaseScheme(t *testing.T) {
	err := run([]string{"people-api", "--log-level", "error", "--db-url", "mysql://u:p@h/db", "migrate"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mysql")
}

func TestSeedPeople(t *testing.T) {
	ctx := context.Background()
	people := storage.NewPeople(testutil.NewSQLiteDB(t))
	require.NoError(t, people.Migrate(ctx))
	d := dao.New(people, cache.NewManager[models.Person](cache.DefaultConfig(), zerolog.Nop()), dao.DefaultConfig(), zerolog.Nop())

	created, skipped, err := seedPeople(ctx, d, 25, 4)
	require.NoError(t, err)
	assert.Equal(t, 25, created+skipped)

	n, err := people.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, created, n)
}

func TestSeedPeople_ReinsertConflicts(t *testing.T) {
	ctx := context.Background()
	people := storage.NewPeople(testutil.NewSQLiteDB(t))
	require.NoError(t, people.Migrate(ctx))
	d := dao.New(people, cache.NewManager[models.Person](cache.DefaultConfig(), zerolog.Nop()), dao.DefaultConfig(), zerolog.Nop())

	first, _, err := seedPeople(ctx, d, 5, 1)
	require.NoError(t, err)
	require.Equal(t, 5, first)

	// Re-inserting the stored rows only produces conflicts.
	all, err := d.ListAll(ctx)
	require.NoError(t, err)
	for _, p := range all {
		_, err := d.Create(ctx, models.CreateInput{Name: p.Name, Email: p.Email})
		assert.ErrorIs(t, err, dao.ErrConflict)
	}
}

func TestFakePerson_IsValid(t *testing.T) {
	faker := gofakeit.New(42)
	for range 50 {
		in := fakePerson(faker)
		_, err := in.Validate()
		require.NoError(t, err, "%+v", in)
	}
}

func TestNewCacheBackend(t *testing.T) {
	newContext := func(t *testing.T, args ...string) *cli.Context {
		t.Helper()
		app := newApp()
		var serve *cli.Command
		for _, cmd := range app.Commands {
			if cmd.Name == "serve" {
				serve = cmd
			}
		}
		require.NotNil(t, serve)

		set := flag.NewFlagSet("serve", flag.ContinueOnError)
		for _, f := range serve.Flags {
			require.NoError(t, f.Apply(set))
		}
		require.NoError(t, set.Parse(args))
		return cli.NewContext(app, set, nil)
	}

	t.Run("memory", func(t *testing.T) {
		backend, err := newCacheBackend(newContext(t))
		require.NoError(t, err)
		assert.NotNil(t, backend.sweeper)
		assert.Empty(t, backend.checks)

		stats, err := backend.store.Stats(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "memory", stats.Backend)
	})

	t.Run("redis", func(t *testing.T) {
		backend, err := newCacheBackend(newContext(t, "--cache-backend", "redis", "--redis-url", "redis://127.0.0.1:1/0"))
		require.NoError(t, err)
		defer backend.close()
		assert.Nil(t, backend.sweeper)
		assert.Contains(t, backend.checks, "redis")
	})

	t.Run("bad redis url", func(t *testing.T) {
		_, err := newCacheBackend(newContext(t, "--cache-backend", "redis", "--redis-url", "not a url"))
		assert.Error(t, err)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := newCacheBackend(newContext(t, "--cache-backend", "memcached"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "memcached")
	})
}
