// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package userprefs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore reads user preferences from the shared user_config table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a preference store backed by the given Postgres
// pool. It ensures the user_config table exists on creation.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure user_config schema: %w", err)
	}
	slog.Info("user preference store initialised")
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS user_config (
			user_id                TEXT PRIMARY KEY,
			sending_domain         TEXT NOT NULL DEFAULT '',
			should_show_full_email BOOLEAN NOT NULL DEFAULT FALSE,
			created_at             TIMESTAMPTZ DEFAULT NOW(),
			updated_at             TIMESTAMPTZ DEFAULT NOW()
		);
	`)
	return err
}

// Get retrieves a user's preference, or (nil, nil) when none is stored.
func (s *PostgresStore) Get(ctx context.Context, userID string) (*Preference, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, sending_domain, should_show_full_email, updated_at
		FROM user_config
		WHERE user_id = $1
	`, userID)

	var p Preference
	err := row.Scan(&p.UserID, &p.SendingDomain, &p.ShouldShowFullEmail, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get preference for %s: %w", userID, err)
	}
	return &p, nil
}

// Upsert inserts or updates a user's preference keyed on user_id.
func (s *PostgresStore) Upsert(ctx context.Context, p Preference) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_config (user_id, sending_domain, should_show_full_email)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			sending_domain         = EXCLUDED.sending_domain,
			should_show_full_email = EXCLUDED.should_show_full_email,
			updated_at             = NOW()
	`, p.UserID, p.SendingDomain, p.ShouldShowFullEmail)
	if err != nil {
		return fmt.Errorf("upsert preference for %s: %w", p.UserID, err)
	}
	return nil
}
