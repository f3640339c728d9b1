package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestCreateInput_Validate(t *testing.T) {
	tests := []struct {
		name       string
		input      CreateInput
		wantFields []string
	}{
		{
			name:  "minimal valid",
			input: CreateInput{Name: "Ana", Email: "ana@x.com"},
		},
		{
			name: "all fields",
			input: CreateInput{
				Name:      "Ana",
				Email:     "ana@x.com",
				Phone:     strPtr("+351 910 000 000"),
				BirthDate: strPtr("1990-05-01"),
				Address:   strPtr("Rua 1"),
			},
		},
		{
			name:       "missing name and email",
			input:      CreateInput{},
			wantFields: []string{"name", "email"},
		},
		{
			name:       "blank name",
			input:      CreateInput{Name: "   ", Email: "ana@x.com"},
			wantFields: []string{"name"},
		},
		{
			name:       "malformed email",
			input:      CreateInput{Name: "Ana", Email: "not-an-email"},
			wantFields: []string{"email"},
		},
		{
			name:       "display name is not a bare address",
			input:      CreateInput{Name: "Ana", Email: "Ana <ana@x.com>"},
			wantFields: []string{"email"},
		},
		{
			name:       "bad birth date",
			input:      CreateInput{Name: "Ana", Email: "ana@x.com", BirthDate: strPtr("01/05/1990")},
			wantFields: []string{"birth_date"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.input.Validate()
			if len(tt.wantFields) == 0 {
				assert.NoError(t, err)
				return
			}

			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs), "want ValidationErrors, got %v", err)
			var fields []string
			for _, fe := range verrs {
				fields = append(fields, fe.Field)
			}
			assert.Equal(t, tt.wantFields, fields)
		})
	}
}

func TestCreateInput_ValidateNormalizes(t *testing.T) {
	p, err := CreateInput{
		Name:      "  Ana  ",
		Email:     "  Ana@X.com ",
		Phone:     strPtr(" 910 "),
		Address:   strPtr("   "),
		BirthDate: strPtr("1990-05-01"),
	}.Validate()
	require.NoError(t, err)

	assert.Equal(t, "Ana", p.Name)
	assert.Equal(t, "ana@x.com", p.Email)
	require.NotNil(t, p.Phone)
	assert.Equal(t, "910", *p.Phone)
	assert.Nil(t, p.Address, "blank optional field should be dropped")
	require.NotNil(t, p.BirthDate)
	assert.Equal(t, "1990-05-01", p.BirthDate.String())
	assert.Empty(t, p.ID, "id is assigned by storage")
}

func TestUpdateInput_Validate(t *testing.T) {
	t.Run("partial", func(t *testing.T) {
		updates, err := UpdateInput{Phone: strPtr(" 912 ")}.Validate()
		require.NoError(t, err)
		assert.Len(t, updates, 1)
		assert.Equal(t, "912", *updates["phone"].(*string))
	})

	t.Run("clear optional", func(t *testing.T) {
		updates, err := UpdateInput{Address: strPtr(""), BirthDate: strPtr("")}.Validate()
		require.NoError(t, err)
		assert.Nil(t, updates["address"].(*string))
		assert.Nil(t, updates["birth_date"])
	})

	t.Run("email is immutable", func(t *testing.T) {
		_, err := UpdateInput{Email: strPtr("new@x.com")}.Validate()
		var verrs ValidationErrors
		require.True(t, errors.As(err, &verrs))
		assert.Equal(t, "email", verrs[0].Field)
	})

	t.Run("id is immutable", func(t *testing.T) {
		_, err := UpdateInput{ID: strPtr("other"), Name: strPtr("Ana")}.Validate()
		var verrs ValidationErrors
		require.True(t, errors.As(err, &verrs))
		assert.Equal(t, "id", verrs[0].Field)
	})

	t.Run("empty patch", func(t *testing.T) {
		_, err := UpdateInput{}.Validate()
		assert.Error(t, err)
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := UpdateInput{Name: strPtr(" ")}.Validate()
		assert.Error(t, err)
	})
}

func TestPerson_Clone(t *testing.T) {
	d := NewDate(time.Date(1990, 5, 1, 15, 0, 0, 0, time.UTC))
	orig := Person{ID: "1", Name: "Ana", Phone: strPtr("910"), Address: strPtr("Rua"), BirthDate: &d}

	clone := orig.Clone()
	*clone.Phone = "999"
	*clone.Address = "Other"
	clone.BirthDate.Time = clone.BirthDate.AddDate(1, 0, 0)

	assert.Equal(t, "910", *orig.Phone)
	assert.Equal(t, "Rua", *orig.Address)
	assert.Equal(t, "1990-05-01", orig.BirthDate.String())
}

func TestPerson_BeforeCreate(t *testing.T) {
	p := &Person{}
	require.NoError(t, p.BeforeCreate(nil))
	assert.Len(t, p.ID, 36)

	kept := &Person{ID: "fixed"}
	require.NoError(t, kept.BeforeCreate(nil))
	assert.Equal(t, "fixed", kept.ID)
}

func TestDate_JSON(t *testing.T) {
	d, err := ParseDate("1990-05-01")
	require.NoError(t, err)

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `"1990-05-01"`, string(data))

	var back Date
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Equal(d.Time))

	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &back))
}

func TestDate_Scan(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    string
		wantErr bool
	}{
		{"time", time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC), "1990-05-01", false},
		{"string", "1990-05-01", "1990-05-01", false},
		{"timestamp string", "1990-05-01T00:00:00Z", "1990-05-01", false},
		{"bytes", []byte("1990-05-01"), "1990-05-01", false},
		{"garbage", "nope", "", true},
		{"wrong type", 42, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Date
			err := d.Scan(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.String())
		})
	}
}

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail("a@b.com"))
	assert.False(t, ValidEmail("a@"))
	assert.False(t, ValidEmail("a b@c.com"))
	assert.Equal(t, "a@b.com", NormalizeEmail(" A@B.COM "))
	assert.Equal(t, "910", NormalizePhone(" 910\t"))
}
