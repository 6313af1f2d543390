package bigquery

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/expense-assistant/internal/domain"
)

// CategoryBySlugWithClient returns the active category with the slug, or nil.
func CategoryBySlugWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, slug string) (*CategoryRow, error) {
	q := client.Query(`
		SELECT
		  category_id,
		  name,
		  slug,
		  category_type,
		  is_active
		FROM ` + ds.Table(categoriesTable) + `
		WHERE slug = @slug AND IFNULL(is_active, TRUE)
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "slug", Value: strings.ToLower(strings.TrimSpace(slug))},
	}

	row, err := readOne[CategoryRow](ctx, q)
	if err != nil {
		return nil, fmt.Errorf("CategoryBySlugWithClient: %w", err)
	}
	return row, nil
}

// SaveCategoryWithClient inserts the category or updates the row with the same id.
func SaveCategoryWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, row *CategoryRow) error {
	q := client.Query(`
		MERGE ` + ds.Table(categoriesTable) + ` t
		USING (SELECT @category_id AS category_id) s
		ON t.category_id = s.category_id
		WHEN MATCHED THEN UPDATE SET
			name = @name, slug = @slug, category_type = @category_type, is_active = @is_active
		WHEN NOT MATCHED THEN INSERT (category_id, name, slug, category_type, is_active)
			VALUES (@category_id, @name, @slug, @category_type, @is_active)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "category_id", Value: row.CategoryID},
		{Name: "name", Value: row.Name},
		{Name: "slug", Value: row.Slug},
		{Name: "category_type", Value: row.CategoryType},
		{Name: "is_active", Value: row.IsActive},
	}
	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("SaveCategoryWithClient: %w", err)
	}
	return nil
}

// CategoryBySlug returns the active category with the slug, or nil.
func (s *Store) CategoryBySlug(ctx context.Context, slug string) (*domain.Category, error) {
	var row *CategoryRow
	err := readWithRetry(ctx, s.log, "CategoryBySlug", func(ctx context.Context) error {
		var err error
		row, err = CategoryBySlugWithClient(ctx, s.client, s.ds, slug)
		return err
	})
	if err != nil || row == nil {
		return nil, err
	}
	return row.ToDomain(), nil
}

// SaveCategory inserts or updates a category.
func (s *Store) SaveCategory(ctx context.Context, c domain.Category) error {
	if c.ID == "" {
		c.ID = s.ids.NewID()
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return SaveCategoryWithClient(ctx, s.client, s.ds, &CategoryRow{
		CategoryID:   c.ID,
		Name:         c.Name,
		Slug:         strings.ToLower(c.Slug),
		CategoryType: string(c.Type),
		IsActive:     bigquery.NullBool{Bool: c.Active, Valid: true},
	})
}
