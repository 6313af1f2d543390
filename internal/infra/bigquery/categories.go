package bigquery

import (
	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/expense-assistant/internal/domain"
)

type CategoryRow struct {
	CategoryID   string            `bigquery:"category_id"`   // REQUIRED
	Name         string            `bigquery:"name"`          // REQUIRED
	Slug         string            `bigquery:"slug"`          // REQUIRED
	CategoryType string            `bigquery:"category_type"` // REQUIRED
	IsActive     bigquery.NullBool `bigquery:"is_active"`     // NULLABLE
}

// ToDomain converts the row.
func (r *CategoryRow) ToDomain() *domain.Category {
	return &domain.Category{
		ID:     r.CategoryID,
		Name:   r.Name,
		Slug:   r.Slug,
		Type:   domain.TransactionType(r.CategoryType),
		Active: !r.IsActive.Valid || r.IsActive.Bool,
	}
}
