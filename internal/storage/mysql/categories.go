package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
)

// Category groups tickets within one department. Names are stored in
// Russian by the helpdesk system.
type Category struct {
	ID           int64          `db:"id"`
	NameRU       sql.NullString `db:"name_ru"`
	DepartmentID int64          `db:"department_id"`
}

func (c Category) Display() string {
	if c.NameRU.String != "" {
		return c.NameRU.String
	}
	return "ID " + strconv.FormatInt(c.ID, 10)
}

// SubCategory refines a category.
type SubCategory struct {
	ID         int64          `db:"id"`
	NameRU     sql.NullString `db:"name_ru"`
	CategoryID int64          `db:"category_id"`
}

func (c SubCategory) Display() string {
	if c.NameRU.String != "" {
		return c.NameRU.String
	}
	return "ID " + strconv.FormatInt(c.ID, 10)
}

func (s *Store) CategoriesByDepartment(ctx context.Context, departmentID int64) ([]Category, error) {
	query := fmt.Sprintf(`SELECT id, name_ru, department_id FROM %s WHERE department_id = ? ORDER BY id`, s.tables.Categories)
	var out []Category
	if err := s.db.SelectContext(ctx, &out, query, departmentID); err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	return out, nil
}

func (s *Store) SubcategoriesByCategory(ctx context.Context, categoryID int64) ([]SubCategory, error) {
	query := fmt.Sprintf(`SELECT id, name_ru, category_id FROM %s WHERE category_id = ? ORDER BY id`, s.tables.Subcategories)
	var out []SubCategory
	if err := s.db.SelectContext(ctx, &out, query, categoryID); err != nil {
		return nil, fmt.Errorf("select subcategories: %w", err)
	}
	return out, nil
}
