package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
)

// Building is a campus building tickets point at.
type Building struct {
	ID          int64          `db:"id"`
	Name        sql.NullString `db:"name"`
	Description sql.NullString `db:"description"`
}

// DisplayName prefers the human description, then the short name, then
// the bare id.
func (b Building) DisplayName() string {
	if b.Description.String != "" {
		return b.Description.String
	}
	if b.Name.String != "" {
		return b.Name.String
	}
	return strconv.FormatInt(b.ID, 10)
}

// BuildingLabels returns display labels for every building keyed by id.
// The table is small; fetching it whole is cheaper than per-id lookups.
func (s *Store) BuildingLabels(ctx context.Context) (map[int64]string, error) {
	query := fmt.Sprintf(`SELECT id, name, description FROM %s`, s.tables.Buildings)
	var rows []Building
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("select buildings: %w", err)
	}
	out := make(map[int64]string, len(rows))
	for _, b := range rows {
		out[b.ID] = b.DisplayName()
	}
	return out, nil
}
