package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Status is a ticket lifecycle state as stored by the helpdesk system.
// Some installations use "available" where others use "new" for the same
// unassigned state, so callers treat the two as an ordered fallback chain.
type Status string

const (
	StatusNew       Status = "new"
	StatusAvailable Status = "available"
	StatusTaken     Status = "taken"
)

// Ticket mirrors one row of the tickets table. The helpdesk UI allows
// submitting tickets without a requester profile, building or category,
// so all foreign keys are nullable. Title holds the contact phone.
type Ticket struct {
	ID            int64          `db:"id"`
	UserID        sql.NullInt64  `db:"user_id"`
	SpecialistID  sql.NullInt64  `db:"specialist_id"`
	BuildingID    sql.NullInt64  `db:"building_id"`
	CategoryID    sql.NullInt64  `db:"category_id"`
	SubcategoryID sql.NullInt64  `db:"subcategory_id"`
	Title         sql.NullString `db:"title"`
	Description   sql.NullString `db:"description"`
	Cabinet       sql.NullString `db:"cabinet"`
	Status        Status         `db:"status"`
	DepartmentID  int64          `db:"department_id"`
}

const ticketColumns = `id, user_id, specialist_id, building_id, category_id, subcategory_id,
	title, description, cabinet, status, department_id`

// TicketsByStatus returns tickets of one department in the given status,
// newest first. An unknown status is an empty result, not an error.
func (s *Store) TicketsByStatus(ctx context.Context, status Status, departmentID int64, limit, offset int) ([]Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE status = ? AND department_id = ? ORDER BY id DESC LIMIT ? OFFSET ?`,
		ticketColumns, s.tables.Tickets)
	var out []Ticket
	if err := s.db.SelectContext(ctx, &out, query, status, departmentID, limit, offset); err != nil {
		return nil, fmt.Errorf("select %q tickets: %w", status, err)
	}
	return out, nil
}

// TicketByID fetches a single ticket or ErrNotFound.
func (s *Store) TicketByID(ctx context.Context, id int64) (Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, ticketColumns, s.tables.Tickets)
	var t Ticket
	if err := s.db.GetContext(ctx, &t, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Ticket{}, ErrNotFound
		}
		return Ticket{}, fmt.Errorf("select ticket %d: %w", id, err)
	}
	return t, nil
}
