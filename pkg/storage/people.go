package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/Sternrassler/people-cache/pkg/models"
)

var (
	// ErrNotFound is returned when no row matches.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a write violates a unique constraint.
	ErrDuplicate = errors.New("duplicate key")

	// ErrUnknownColumn is returned for lookups on a column that is not searchable.
	ErrUnknownColumn = errors.New("unknown lookup column")
)

// pgUniqueViolation is the postgres SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// lookupColumns are the columns FindOneBy accepts.
var lookupColumns = map[string]bool{
	"id":    true,
	"email": true,
	"phone": true,
}

// People is the gorm-backed people table.
type People struct {
	db *gorm.DB
}

// NewPeople wraps an open database.
func NewPeople(db *gorm.DB) *People {
	if db == nil {
		panic("storage: db must not be nil")
	}
	return &People{db: db}
}

// DB returns the underlying gorm handle.
func (s *People) DB() *gorm.DB {
	return s.db
}

// Migrate creates or updates the people table and its indexes, then fills
// name_search on rows written before the column existed.
func (s *People) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(&models.Person{}); err != nil {
		return err
	}

	var stale []models.Person
	err := db.Select("id", "name").
		Where("name_search = ? AND name <> ?", "", "").
		Find(&stale).Error
	if err != nil {
		return fmt.Errorf("backfill name_search: %w", err)
	}
	for _, p := range stale {
		err := db.Model(&models.Person{}).
			Where("id = ?", p.ID).
			UpdateColumn("name_search", models.FoldName(p.Name)).Error
		if err != nil {
			return fmt.Errorf("backfill name_search: %w", err)
		}
	}
	return nil
}

// Ping checks that the database answers.
func (s *People) Ping(ctx context.Context) error {
	sqldb, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqldb.PingContext(ctx)
}

// Insert stores p and fills in its ID and timestamps.
func (s *People) Insert(ctx context.Context, p *models.Person) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return translate(err)
	}
	return nil
}

// Update applies column updates to the row with id and returns the stored row.
func (s *People) Update(ctx context.Context, id string, updates map[string]any) (*models.Person, error) {
	var out models.Person
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cols := make(map[string]any, len(updates)+1)
		for k, v := range updates {
			cols[k] = v
		}
		if name, ok := updates["name"].(string); ok {
			cols["name_search"] = models.FoldName(name)
		}
		cols["updated_at"] = tx.NowFunc()

		res := tx.Model(&models.Person{}).Where("id = ?", id).Updates(cols)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("id = ?", id).Take(&out).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

// Delete removes the row with id.
func (s *People) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Person{})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindByID returns the row with id, or ErrNotFound.
func (s *People) FindByID(ctx context.Context, id string) (*models.Person, error) {
	return s.FindOneBy(ctx, "id", id)
}

// FindOneBy returns the oldest row whose column equals value, or ErrNotFound.
// The value is always passed as a bound parameter.
func (s *People) FindOneBy(ctx context.Context, column, value string) (*models.Person, error) {
	column = strings.ToLower(strings.TrimSpace(column))
	if !lookupColumns[column] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, column)
	}

	var p models.Person
	err := s.db.WithContext(ctx).
		Where(column+" = ?", value).
		Order("created_at, id").
		Take(&p).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// SearchByName returns rows whose name contains fragment, ignoring case,
// ordered by name. Both sides are folded with models.FoldName.
func (s *People) SearchByName(ctx context.Context, fragment string) ([]models.Person, error) {
	pattern := "%" + escapeLike(models.FoldName(fragment)) + "%"

	var out []models.Person
	err := s.db.WithContext(ctx).
		Where(`name_search LIKE ? ESCAPE '\'`, pattern).
		Order("name, id").
		Find(&out).Error
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}

// ListAll returns every row ordered by name.
func (s *People) ListAll(ctx context.Context) ([]models.Person, error) {
	var out []models.Person
	if err := s.db.WithContext(ctx).Order("name, id").Find(&out).Error; err != nil {
		return nil, translate(err)
	}
	return out, nil
}

// Count returns the number of rows.
func (s *People) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Person{}).Count(&n).Error; err != nil {
		return 0, translate(err)
	}
	return n, nil
}

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case IsUniqueViolation(err):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}

// IsUniqueViolation reports whether err is a unique constraint failure on
// any supported driver.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
