package columns

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// SQLStore keeps column layouts in a relational table with one row per
// column. Save rewrites the table inside a transaction.
type SQLStore struct {
	db     *sql.DB
	table  string
	driver string
}

// NewSQLStore creates a store over db. driver selects the placeholder
// style: sqlite3 uses "?", postgres and pgx use "$n".
func NewSQLStore(db *sql.DB, driver, table string) (*SQLStore, error) {
	if table == "" {
		return nil, fmt.Errorf("table name is required")
	}
	switch driver {
	case "sqlite3", "postgres", "pgx":
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}
	return &SQLStore{db: db, table: pq.QuoteIdentifier(table), driver: driver}, nil
}

func (s *SQLStore) placeholders(n, offset int) string {
	parts := make([]string, n)
	for i := range parts {
		if s.driver == "sqlite3" {
			parts[i] = "?"
		} else {
			parts[i] = "$" + strconv.Itoa(offset+i+1)
		}
	}
	return strings.Join(parts, ", ")
}

// EnsureSchema creates the table if it does not exist
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	view_id TEXT NOT NULL,
	name TEXT NOT NULL,
	visible BOOLEAN NOT NULL,
	position INTEGER NOT NULL,
	width INTEGER NOT NULL,
	PRIMARY KEY (view_id, name)
)`, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create column state table: %w", err)
	}
	return nil
}

// Load reads every row
func (s *SQLStore) Load(ctx context.Context) (map[string][]State, error) {
	query := fmt.Sprintf("SELECT view_id, name, visible, position, width FROM %s ORDER BY view_id, position, name", s.table)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query column state: %w", err)
	}
	defer rows.Close()

	views := make(map[string][]State)
	for rows.Next() {
		var viewID string
		var st State
		if err := rows.Scan(&viewID, &st.Name, &st.Visible, &st.Order, &st.Width); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
		}
		views[viewID] = append(views[viewID], st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read column state: %w", err)
	}
	return views, nil
}

// Save replaces all rows
func (s *SQLStore) Save(ctx context.Context, views map[string][]State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", s.table)); err != nil {
		return fmt.Errorf("failed to clear column state: %w", err)
	}

	insert := fmt.Sprintf("INSERT INTO %s (view_id, name, visible, position, width) VALUES (%s)",
		s.table, s.placeholders(5, 0))
	for _, id := range sortedViewIDs(views) {
		for _, st := range views[id] {
			if _, err := tx.ExecContext(ctx, insert, id, st.Name, st.Visible, st.Order, st.Width); err != nil {
				return fmt.Errorf("failed to save column %s of %s: %w", st.Name, id, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit column state: %w", err)
	}
	return nil
}
