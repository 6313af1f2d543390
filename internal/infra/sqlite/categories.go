package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/expense-assistant/internal/domain"
)

// CategoryBySlug returns the active category with the slug, or nil.
func (s *Store) CategoryBySlug(ctx context.Context, slug string) (*domain.Category, error) {
	var (
		c       domain.Category
		catType string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT category_id, name, slug, category_type, is_active
		FROM categories
		WHERE slug = ? AND is_active = 1
	`, strings.ToLower(strings.TrimSpace(slug))).Scan(&c.ID, &c.Name, &c.Slug, &catType, &c.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("CategoryBySlug: %w", err)
	}
	c.Type = domain.TransactionType(catType)
	return &c, nil
}

// SaveCategory inserts or replaces a category.
func (s *Store) SaveCategory(ctx context.Context, c domain.Category) error {
	if c.ID == "" {
		c.ID = s.ids.NewID()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (category_id, name, slug, category_type, is_active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(category_id) DO UPDATE SET
			name = excluded.name,
			slug = excluded.slug,
			category_type = excluded.category_type,
			is_active = excluded.is_active
	`, c.ID, c.Name, strings.ToLower(c.Slug), string(c.Type), c.Active)
	if err != nil {
		return fmt.Errorf("SaveCategory: %w", err)
	}
	return nil
}
