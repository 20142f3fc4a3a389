package repository

import (
	"context"

	"clientportal/internal/apperr"
	"clientportal/internal/model"
	"clientportal/pkg/db"
)

type CategoryRepository struct {
	db db.DBTX
}

func NewCategoryRepository(conn db.DBTX) *CategoryRepository {
	return &CategoryRepository{db: conn}
}

// ListActive 按名称排序
func (r *CategoryRepository) ListActive(ctx context.Context) ([]model.ProjectCategory, error) {
	q := newSelect("project_categories", "pc", "to_jsonb(pc)").
		Eq("is_active", true).
		OrderBy("name", false)

	categories, err := queryList[model.ProjectCategory](ctx, r.db, q)
	if err != nil {
		return nil, apperr.Wrap("categories.list", err)
	}
	return categories, nil
}
