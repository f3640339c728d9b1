package models

import (
	"fmt"
	"net/mail"
	"strings"
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects every invalid field of an input.
type ValidationErrors []FieldError

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, fe := range v {
		parts[i] = fmt.Sprintf("%s: %s", fe.Field, fe.Message)
	}
	return strings.Join(parts, "; ")
}

func (v *ValidationErrors) add(field, message string) {
	*v = append(*v, FieldError{Field: field, Message: message})
}

func (v ValidationErrors) err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// CreateInput is the caller-supplied data for a new person.
type CreateInput struct {
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Phone     *string `json:"phone,omitempty"`
	BirthDate *string `json:"birth_date,omitempty"`
	Address   *string `json:"address,omitempty"`
}

// UpdateInput is a partial update. Nil fields are left unchanged; an empty
// string clears an optional field. ID and Email are accepted only to reject them.
type UpdateInput struct {
	ID        *string `json:"id,omitempty"`
	Name      *string `json:"name,omitempty"`
	Email     *string `json:"email,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	BirthDate *string `json:"birth_date,omitempty"`
	Address   *string `json:"address,omitempty"`
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone trims surrounding whitespace from a phone number.
func NormalizePhone(phone string) string {
	return strings.TrimSpace(phone)
}

// ValidEmail reports whether email is a bare address such as "ana@x.com".
func ValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Address == email
}

// Validate checks required fields and formats and returns the normalized
// record to insert.
func (in CreateInput) Validate() (Person, error) {
	var errs ValidationErrors

	name := strings.TrimSpace(in.Name)
	if name == "" {
		errs.add("name", "is required")
	}

	email := NormalizeEmail(in.Email)
	switch {
	case email == "":
		errs.add("email", "is required")
	case !ValidEmail(email):
		errs.add("email", "is not a valid address")
	}

	person := Person{
		Name:    name,
		Email:   email,
		Phone:   optional(in.Phone, NormalizePhone),
		Address: optional(in.Address, strings.TrimSpace),
	}

	if in.BirthDate != nil && strings.TrimSpace(*in.BirthDate) != "" {
		d, err := ParseDate(strings.TrimSpace(*in.BirthDate))
		if err != nil {
			errs.add("birth_date", "must be YYYY-MM-DD")
		} else {
			person.BirthDate = &d
		}
	}

	if err := errs.err(); err != nil {
		return Person{}, err
	}
	return person, nil
}

// Validate checks the patch and returns the column updates it implies.
// Cleared optional fields map to nil.
func (in UpdateInput) Validate() (map[string]any, error) {
	var errs ValidationErrors
	updates := make(map[string]any)

	if in.ID != nil {
		errs.add("id", "cannot be changed")
	}

	if in.Email != nil {
		errs.add("email", "cannot be changed")
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			errs.add("name", "cannot be empty")
		} else {
			updates["name"] = name
		}
	}

	if in.Phone != nil {
		updates["phone"] = optional(in.Phone, NormalizePhone)
	}

	if in.Address != nil {
		updates["address"] = optional(in.Address, strings.TrimSpace)
	}

	if in.BirthDate != nil {
		raw := strings.TrimSpace(*in.BirthDate)
		if raw == "" {
			updates["birth_date"] = nil
		} else if d, err := ParseDate(raw); err != nil {
			errs.add("birth_date", "must be YYYY-MM-DD")
		} else {
			updates["birth_date"] = d
		}
	}

	if len(errs) == 0 && len(updates) == 0 {
		errs.add("body", "no updatable fields supplied")
	}

	if err := errs.err(); err != nil {
		return nil, err
	}
	return updates, nil
}

// optional normalizes an optional string; empty results become nil.
func optional(s *string, normalize func(string) string) *string {
	if s == nil {
		return nil
	}
	v := normalize(*s)
	if v == "" {
		return nil
	}
	return &v
}
