// Package models defines the person record and the inputs that create or
// modify it.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Person is a row of the people table.
// ID and Email never change after creation.
type Person struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name      string    `gorm:"not null;index" json:"name"`

	// SearchName is Name folded with FoldName; name search matches against it
	// so case folding does not depend on the database's LOWER().
	SearchName string `gorm:"column:name_search;not null;default:'';index" json:"-"`

	Email     string    `gorm:"not null;uniqueIndex" json:"email"`
	Phone     *string   `gorm:"index" json:"phone,omitempty"`
	BirthDate *Date     `json:"birth_date,omitempty"`
	Address   *string   `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName pins the table name used by gorm.
func (Person) TableName() string {
	return "people"
}

// BeforeCreate assigns a random UUID when the caller left ID empty and
// derives SearchName.
func (p *Person) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.SearchName = FoldName(p.Name)
	return nil
}

// FoldName lowercases a name or name fragment with Unicode case mapping.
func FoldName(name string) string {
	return strings.ToLower(name)
}

// Clone returns a deep copy, so a cached record cannot be mutated through a
// pointer handed to a caller.
func (p Person) Clone() Person {
	out := p
	out.Phone = cloneString(p.Phone)
	out.Address = cloneString(p.Address)
	if p.BirthDate != nil {
		d := *p.BirthDate
		out.BirthDate = &d
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
