// Package dao is the record access layer for people.
//
// Writes go to storage and then clear the whole query cache. The email and
// phone lookups read through the cache; every other read goes straight to
// storage.
package dao

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Sternrassler/people-cache/pkg/cache"
	"github.com/Sternrassler/people-cache/pkg/models"
	"github.com/Sternrassler/people-cache/pkg/storage"
)

// Storage is the table access the DAO needs. *storage.People implements it.
type Storage interface {
	Insert(ctx context.Context, p *models.Person) error
	Update(ctx context.Context, id string, updates map[string]any) (*models.Person, error)
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*models.Person, error)
	FindOneBy(ctx context.Context, column, value string) (*models.Person, error)
	SearchByName(ctx context.Context, fragment string) ([]models.Person, error)
	ListAll(ctx context.Context) ([]models.Person, error)
}

var _ Storage = (*storage.People)(nil)

const (
	columnEmail = "email"
	columnPhone = "phone"
)

// Config holds DAO configuration.
type Config struct {
	// CacheTTL is the lifetime of cached lookups (0 uses the cache default)
	CacheTTL time.Duration

	// LookupTimeout bounds a shared cached-lookup query, which does not
	// inherit any caller's deadline (0 means no bound)
	LookupTimeout time.Duration
}

// DefaultConfig returns the default DAO configuration.
func DefaultConfig() Config {
	return Config{
		CacheTTL:      cache.DefaultTTL,
		LookupTimeout: 5 * time.Second,
	}
}

// DAO performs person CRUD and cached lookups.
type DAO struct {
	store  Storage
	cache  cache.Store[models.Person]
	group  singleflight.Group
	config Config
	logger zerolog.Logger
}

// New creates a DAO over store, caching lookups in c.
func New(store Storage, c cache.Store[models.Person], cfg Config, logger zerolog.Logger) *DAO {
	if store == nil {
		panic("dao: storage must not be nil")
	}
	if c == nil {
		panic("dao: cache must not be nil")
	}
	return &DAO{
		store:  store,
		cache:  c,
		config: cfg,
		logger: logger.With().Str("component", "dao").Logger(),
	}
}

// Create validates in, inserts a new person and clears the cache.
func (d *DAO) Create(ctx context.Context, in models.CreateInput) (*models.Person, error) {
	const op = "create"
	defer observe(op, time.Now())

	p, err := in.Validate()
	if err != nil {
		return nil, d.fail(op, classify(op, err))
	}

	if err := d.store.Insert(ctx, &p); err != nil {
		return nil, d.fail(op, classify(op, err))
	}

	d.invalidate(ctx, op)
	succeed(op)
	d.logger.Info().Str("id", p.ID).Msg("Person created")
	return &p, nil
}

// Update applies a partial update to the person with id and clears the cache.
// Email and id cannot be changed.
func (d *DAO) Update(ctx context.Context, id string, in models.UpdateInput) (*models.Person, error) {
	const op = "update"
	defer observe(op, time.Now())

	updates, err := in.Validate()
	if err != nil {
		return nil, d.fail(op, classify(op, err))
	}

	p, err := d.store.Update(ctx, id, updates)
	if err != nil {
		return nil, d.fail(op, classify(op, err))
	}

	d.invalidate(ctx, op)
	succeed(op)
	d.logger.Info().Str("id", id).Int("fields", len(updates)).Msg("Person updated")
	return p, nil
}

// Delete removes the person with id and clears the cache.
func (d *DAO) Delete(ctx context.Context, id string) error {
	const op = "delete"
	defer observe(op, time.Now())

	if err := d.store.Delete(ctx, id); err != nil {
		return d.fail(op, classify(op, err))
	}

	d.invalidate(ctx, op)
	succeed(op)
	d.logger.Info().Str("id", id).Msg("Person deleted")
	return nil
}

// GetByID returns the person with id, or nil if there is none. Not cached.
func (d *DAO) GetByID(ctx context.Context, id string) (*models.Person, error) {
	const op = "get_by_id"
	defer observe(op, time.Now())

	p, err := d.store.FindByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		succeed(op)
		return nil, nil
	}
	if err != nil {
		return nil, d.fail(op, classify(op, err))
	}
	succeed(op)
	return p, nil
}

// FindByName returns people whose name contains fragment, ignoring case,
// ordered by name. Not cached.
func (d *DAO) FindByName(ctx context.Context, fragment string) ([]models.Person, error) {
	const op = "find_by_name"
	defer observe(op, time.Now())

	people, err := d.store.SearchByName(ctx, fragment)
	if err != nil {
		return nil, d.fail(op, classify(op, err))
	}
	succeed(op)
	return nonNil(people), nil
}

// ListAll returns every person ordered by name. Not cached.
func (d *DAO) ListAll(ctx context.Context) ([]models.Person, error) {
	const op = "list_all"
	defer observe(op, time.Now())

	people, err := d.store.ListAll(ctx)
	if err != nil {
		return nil, d.fail(op, classify(op, err))
	}
	succeed(op)
	return nonNil(people), nil
}

// FindByEmail returns the person registered with email, or nil.
// Results are cached; misses are not.
func (d *DAO) FindByEmail(ctx context.Context, email string) (*models.Person, error) {
	const op = "find_by_email"
	defer observe(op, time.Now())
	return d.findCached(ctx, op, columnEmail, models.NormalizeEmail(email))
}

// FindByPhone returns the oldest person with phone, or nil.
// Results are cached; misses are not.
func (d *DAO) FindByPhone(ctx context.Context, phone string) (*models.Person, error) {
	const op = "find_by_phone"
	defer observe(op, time.Now())
	return d.findCached(ctx, op, columnPhone, models.NormalizePhone(phone))
}

// findCached reads column = value through the cache.
//
// The cache generation is read before storage is queried and the result is
// stored with SetIfCurrent, so a lookup that overlaps a write never caches
// the row as it was before the write. Concurrent misses for the same key and
// generation share one storage query.
func (d *DAO) findCached(ctx context.Context, op, column, value string) (*models.Person, error) {
	if value == "" {
		succeed(op)
		return nil, nil
	}

	query := cache.Query{Table: models.Person{}.TableName(), Column: column, Value: value}
	key := query.Key()

	if p, ok := d.cache.Get(ctx, key); ok {
		daoLookupsTotal.WithLabelValues(column, "cache").Inc()
		succeed(op)
		out := p.Clone()
		return &out, nil
	}

	generation, genErr := d.cache.Generation(ctx)
	if genErr != nil {
		d.logger.Warn().Err(genErr).Str("query", op).Msg("Cache generation unavailable, result will not be cached")
	}

	flight := d.group.DoChan(fmt.Sprintf("%d:%s", generation, key), func() (any, error) {
		qctx, cancel := d.lookupContext(ctx)
		defer cancel()

		p, err := d.store.FindOneBy(qctx, column, value)
		if errors.Is(err, storage.ErrNotFound) {
			return (*models.Person)(nil), nil
		}
		if err != nil {
			return nil, err
		}

		if genErr == nil {
			stored, err := d.cache.SetIfCurrent(qctx, generation, key, p.Clone(), d.config.CacheTTL)
			switch {
			case err != nil:
				d.logger.Warn().Err(err).Str("query", op).Msg("Cache populate failed")
			case !stored:
				d.logger.Debug().Str("query", op).Msg("Cache invalidated during lookup, result not cached")
			}
		}
		return p, nil
	})

	// Each caller waits on its own context; the shared query keeps running
	// for the others when one of them goes away.
	var res singleflight.Result
	select {
	case res = <-flight:
	case <-ctx.Done():
		return nil, d.fail(op, classify(op, ctx.Err()))
	}
	if res.Err != nil {
		return nil, d.fail(op, classify(op, res.Err))
	}

	if res.Shared {
		daoLookupsTotal.WithLabelValues(column, "shared").Inc()
	} else {
		daoLookupsTotal.WithLabelValues(column, "storage").Inc()
	}
	succeed(op)

	p := res.Val.(*models.Person)
	if p == nil {
		return nil, nil
	}
	out := p.Clone()
	return &out, nil
}

// lookupContext detaches a shared lookup from the cancellation of the caller
// that started it, keeping its values, and applies LookupTimeout.
func (d *DAO) lookupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if d.config.LookupTimeout <= 0 {
		return context.WithCancel(detached)
	}
	return context.WithTimeout(detached, d.config.LookupTimeout)
}

// CacheStats returns the query cache statistics.
func (d *DAO) CacheStats(ctx context.Context) (cache.Stats, error) {
	return d.cache.Stats(ctx)
}

// InvalidateCache clears the query cache and returns how many entries were removed.
func (d *DAO) InvalidateCache(ctx context.Context) (int, error) {
	n, err := d.cache.InvalidateAll(ctx)
	if err != nil {
		return 0, err
	}
	d.logger.Info().Int("removed", n).Msg("Cache invalidated on request")
	return n, nil
}

// EvictQuery removes one cached lookup by its derived key.
func (d *DAO) EvictQuery(ctx context.Context, key string) (bool, error) {
	return d.cache.Evict(ctx, key)
}

// SweepCache removes expired cache entries.
func (d *DAO) SweepCache(ctx context.Context) (int, error) {
	return d.cache.SweepExpired(ctx)
}

// invalidate clears the cache after a committed write. A failure is logged
// and counted; the write itself stands.
func (d *DAO) invalidate(ctx context.Context, op string) {
	n, err := d.cache.InvalidateAll(ctx)
	if err != nil {
		daoInvalidationFailures.Inc()
		d.logger.Error().Err(err).Str("operation", op).Msg("Cache invalidation failed after write")
		return
	}
	d.logger.Debug().Str("operation", op).Int("removed", n).Msg("Cache invalidated")
}

func (d *DAO) fail(op string, e *Error) error {
	daoOperationsTotal.WithLabelValues(op, string(e.Kind)).Inc()
	event := d.logger.Warn()
	if e.Kind == KindStorage {
		event = d.logger.Error()
	}
	event.Err(e.Err).Str("operation", op).Str("kind", string(e.Kind)).Msg("Operation failed")
	return e
}

func succeed(op string) {
	daoOperationsTotal.WithLabelValues(op, "ok").Inc()
}

func observe(op string, start time.Time) {
	daoOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func nonNil(people []models.Person) []models.Person {
	if people == nil {
		return []models.Person{}
	}
	return people
}
