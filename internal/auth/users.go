package auth

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxUsernameBase = 12

// generateUsernameBase keeps the ASCII letters and digits of name, lowercased
// and cut to maxUsernameBase. Names with none of them map to "user".
func generateUsernameBase(name string) string {
	base := strings.Map(func(r rune) rune {
		switch {
		case 'a' <= r && r <= 'z', '0' <= r && r <= '9':
			return r
		}
		return -1
	}, strings.ToLower(name))
	if base == "" {
		return "user"
	}
	return base[:min(len(base), maxUsernameBase)]
}

// GenerateUsername appends four random digits to the name's base.
// Collisions are left to the unique constraint; callers retry.
func GenerateUsername(name string) string {
	return fmt.Sprintf("%s%04d", generateUsernameBase(name), rand.IntN(10000))
}

// LazyUsers creates throwaway accounts for anonymous visitors.
type LazyUsers struct {
	db *sql.DB
}

func NewLazyUsers(db *sql.DB) *LazyUsers {
	return &LazyUsers{db: db}
}

func (l *LazyUsers) Create(ctx context.Context) (int64, error) {
	now := time.Now().UnixMilli()
	var id int64
	err := l.db.QueryRowContext(ctx,
		`INSERT INTO users (name, username, is_lazy, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		"", "lazy-"+uuid.NewString(), true, now, now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create lazy user: %w", err)
	}
	return id, nil
}
