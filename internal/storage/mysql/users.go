package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
)

// User is a helpdesk account. Requesters and specialists live in the same
// table.
type User struct {
	ID        int64          `db:"id"`
	Firstname sql.NullString `db:"firstname"`
	Lastname  sql.NullString `db:"lastname"`
	Phone     sql.NullString `db:"phone"`
}

// FullName renders "Firstname Lastname" with missing parts dropped; an
// account with no name at all shows as "ID <id>".
func (u User) FullName() string {
	name := strings.TrimSpace(u.Firstname.String + " " + u.Lastname.String)
	if name == "" {
		return "ID " + strconv.FormatInt(u.ID, 10)
	}
	return name
}

// UsersByIDs fetches the given accounts keyed by id. Unknown ids are
// simply absent from the result; an empty input issues no query.
func (s *Store) UsersByIDs(ctx context.Context, ids []int64) (map[int64]User, error) {
	out := make(map[int64]User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(
		fmt.Sprintf(`SELECT id, firstname, lastname, phone FROM %s WHERE id IN (?)`, s.tables.Users), ids)
	if err != nil {
		return nil, fmt.Errorf("expand user ids: %w", err)
	}
	var rows []User
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	for _, u := range rows {
		out[u.ID] = u
	}
	return out, nil
}
