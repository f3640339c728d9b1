package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/people-cache/internal/testutil"
	"github.com/Sternrassler/people-cache/pkg/api"
	"github.com/Sternrassler/people-cache/pkg/cache"
	"github.com/Sternrassler/people-cache/pkg/dao"
	"github.com/Sternrassler/people-cache/pkg/models"
	"github.com/Sternrassler/people-cache/pkg/storage"
)

func strPtr(s string) *string { return &s }

// setupAPI starts a people API over in-memory sqlite and returns a client for it.
func setupAPI(t *testing.T) *Client {
	t.Helper()

	people := storage.NewPeople(testutil.NewSQLiteDB(t))
	require.NoError(t, people.Migrate(context.Background()))

	c := cache.NewManager[models.Person](cache.DefaultConfig(), zerolog.Nop())
	d := dao.New(people, c, dao.DefaultConfig(), zerolog.Nop())

	reg := prometheus.NewRegistry()
	cfg := api.DefaultConfig()
	cfg.Registerer = reg
	cfg.Gatherer = reg
	cfg.Checks = map[string]api.Pinger{"database": people}

	server := httptest.NewServer(api.NewServer(d, cfg, zerolog.Nop()))
	t.Cleanup(server.Close)

	client, err := New(DefaultConfig(server.URL))
	require.NoError(t, err)
	return client
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{"valid http", "http://localhost:8080", false},
		{"valid with trailing slash", "https://people.example.com/", false},
		{"empty", "", true},
		{"no scheme", "localhost:8080", true},
		{"unsupported scheme", "ftp://localhost", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(DefaultConfig(tt.baseURL))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("http://localhost:8080")
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.NotEmpty(t, cfg.UserAgent)
	assert.Equal(t, DefaultRetryConfig(), cfg.Retry)
}

func TestClient_EndToEnd(t *testing.T) {
	ctx := context.Background()
	client := setupAPI(t)

	health, err := client.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)

	ready, err := client.Ready(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", ready.Checks["database"])

	ana, err := client.CreatePerson(ctx, models.CreateInput{Name: "Ana", Email: "ana@x.com"})
	require.NoError(t, err)
	require.NotNil(t, ana)

	// Cold cache then warm cache.
	resp, err := client.Lookup(ctx, "email", "ana@x.com", true)
	require.NoError(t, err)
	require.NotNil(t, resp.Person)
	assert.Equal(t, ana.ID, resp.Person.ID)
	assert.Equal(t, 1, resp.Cache.Size)
	assert.EqualValues(t, 0, resp.Cache.Hits)

	resp, err = client.Lookup(ctx, "email", "ana@x.com", true)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Cache.Size)
	assert.EqualValues(t, 1, resp.Cache.Hits)

	updated, err := client.UpdatePerson(ctx, ana.ID, models.UpdateInput{Phone: strPtr("910")})
	require.NoError(t, err)
	assert.Equal(t, "910", *updated.Phone)

	stats, err := client.CacheStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Cache.Size)

	byPhone, err := client.FindByPhone(ctx, "910")
	require.NoError(t, err)
	require.NotNil(t, byPhone)
	assert.Equal(t, ana.ID, byPhone.ID)

	byEmail, err := client.FindByEmail(ctx, "ana@x.com")
	require.NoError(t, err)
	assert.Equal(t, "910", *byEmail.Phone)

	list, err := client.ListPeople(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	found, err := client.SearchPeople(ctx, "an")
	require.NoError(t, err)
	assert.Len(t, found, 1)

	require.NoError(t, client.DeletePerson(ctx, ana.ID))

	gone, err := client.GetPerson(ctx, ana.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	missing, err := client.FindByEmail(ctx, "ana@x.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestClient_ErrorClassification(t *testing.T) {
	ctx := context.Background()
	client := setupAPI(t)

	ana, err := client.CreatePerson(ctx, models.CreateInput{Name: "Ana", Email: "ana@x.com"})
	require.NoError(t, err)

	t.Run("conflict", func(t *testing.T) {
		_, err := client.CreatePerson(ctx, models.CreateInput{Name: "Other", Email: "ana@x.com"})
		require.Error(t, err)
		assert.ErrorIs(t, err, dao.ErrConflict)

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
		assert.Equal(t, ErrorClassClient, apiErr.ErrorClass)
	})

	t.Run("validation carries fields", func(t *testing.T) {
		_, err := client.CreatePerson(ctx, models.CreateInput{Name: "Ana"})
		require.Error(t, err)
		assert.ErrorIs(t, err, dao.ErrValidation)

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		require.Len(t, apiErr.Fields, 1)
		assert.Equal(t, "email", apiErr.Fields[0].Field)
	})

	t.Run("email is immutable", func(t *testing.T) {
		_, err := client.UpdatePerson(ctx, ana.ID, models.UpdateInput{Email: strPtr("new@x.com")})
		assert.ErrorIs(t, err, dao.ErrValidation)
	})

	t.Run("not found", func(t *testing.T) {
		assert.ErrorIs(t, client.DeletePerson(ctx, "missing"), dao.ErrNotFound)
	})
}

func TestClient_CacheAdmin(t *testing.T) {
	ctx := context.Background()
	client := setupAPI(t)

	_, err := client.CreatePerson(ctx, models.CreateInput{Name: "Ana", Email: "ana@x.com", Phone: strPtr("910")})
	require.NoError(t, err)
	_, err = client.FindByEmail(ctx, "ana@x.com")
	require.NoError(t, err)
	_, err = client.FindByPhone(ctx, "910")
	require.NoError(t, err)

	key := cache.Query{Table: "people", Column: "phone", Value: "910"}.Key()
	evicted, err := client.EvictCacheKey(ctx, key)
	require.NoError(t, err)
	assert.True(t, evicted)

	swept, err := client.SweepCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, swept)

	removed, err := client.InvalidateCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestClient_RetriesReadsOnUnavailable(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"people":[{"id":"1","name":"Ana","email":"ana@x.com"}]}`))
	}))
	defer server.Close()

	cfg := DefaultConfig(server.URL)
	cfg.Retry = fastRetry()
	client, err := New(cfg)
	require.NoError(t, err)

	people, err := client.ListPeople(context.Background())
	require.NoError(t, err)
	assert.Len(t, people, 1)
	assert.EqualValues(t, 3, attempts.Load())
}

func TestClient_DoesNotRetryWrites(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := DefaultConfig(server.URL)
	cfg.Retry = fastRetry()
	client, err := New(cfg)
	require.NoError(t, err)

	_, err = client.CreatePerson(context.Background(), models.CreateInput{Name: "Ana", Email: "ana@x.com"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, ErrorClassUnavailable, apiErr.ErrorClass)
	assert.EqualValues(t, 1, attempts.Load())
}

func TestClient_DoesNotRetryServerErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"storage","message":"storage unavailable"}`))
	}))
	defer server.Close()

	cfg := DefaultConfig(server.URL)
	cfg.Retry = fastRetry()
	client, err := New(cfg)
	require.NoError(t, err)

	_, err = client.ListPeople(context.Background())
	assert.ErrorIs(t, err, dao.ErrStorage)
	assert.EqualValues(t, 1, attempts.Load())
}

func TestClient_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	cfg := DefaultConfig(url)
	cfg.Retry = fastRetry()
	client, err := New(cfg)
	require.NoError(t, err)

	_, err = client.Health(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetryExhausted)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, ErrorClassNetwork, apiErr.ErrorClass)
}
