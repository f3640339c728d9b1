package cache

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestRedisStore_KeyLayout(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	store := NewRedisStore[string](client, "people:cache:", DefaultConfig(), zerolog.Nop())

	if got := store.generationKey(); got != "people:cache:generation" {
		t.Errorf("generationKey() = %q", got)
	}
	if got := store.dataKey(7, "abc"); got != "people:cache:7:abc" {
		t.Errorf("dataKey() = %q", got)
	}

	tests := []struct {
		key     string
		wantGen uint64
		wantOK  bool
	}{
		{"people:cache:7:abc", 7, true},
		{"people:cache:0:abc", 0, true},
		{"people:cache:generation", 0, false},
		{"other:7:abc", 0, false},
		{"people:cache:x:abc", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			gen, ok := store.keyGeneration(tt.key)
			if gen != tt.wantGen || ok != tt.wantOK {
				t.Errorf("keyGeneration(%q) = %d, %v; want %d, %v", tt.key, gen, ok, tt.wantGen, tt.wantOK)
			}
		})
	}
}

func TestNewRedisStore_DefaultPrefix(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	store := NewRedisStore[string](client, "", Config{}, zerolog.Nop())
	if store.prefix != DefaultRedisPrefix {
		t.Errorf("prefix = %q, want %q", store.prefix, DefaultRedisPrefix)
	}
	if store.config.DefaultTTL != DefaultTTL {
		t.Errorf("DefaultTTL = %v, want %v", store.config.DefaultTTL, DefaultTTL)
	}
}
