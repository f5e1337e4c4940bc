// Package source reads legacy rows from the MS SQL Server database. Rows
// come back as generic column maps so each migration can pick apart its
// own schema without a struct per table.
package source

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cockroachdb/errors"
)

// Row is one legacy record, keyed by column name. Byte-slice values are
// normalized to strings at scan time.
type Row = map[string]interface{}

// SQLSource wraps the shared source connection.
type SQLSource struct {
	db *sql.DB
}

func New(db *sql.DB) *SQLSource {
	return &SQLSource{db: db}
}

// Query runs an arbitrary SELECT and scans every row into a column map.
func (s *SQLSource) Query(ctx context.Context, query string, args ...interface{}) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "source query failed: %s", query)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "reading result columns")
	}

	var results []Row
	for rows.Next() {
		values := make([]interface{}, len(cols))
		pointers := make([]interface{}, len(cols))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, errors.Wrap(err, "scanning row")
		}

		m := make(Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				m[col] = string(b)
			} else {
				m[col] = values[i]
			}
		}
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating rows")
	}
	return results, nil
}

// Count returns the row count of a source table.
func (s *SQLSource) Count(ctx context.Context, table string) (int, error) {
	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "counting %s", table)
	}
	return n, nil
}

// Page fetches one page of baseQuery using the SQL Server OFFSET/FETCH
// dialect. orderCol must be a stable column (the natural key) so pages
// do not overlap between fetches.
func (s *SQLSource) Page(ctx context.Context, baseQuery, orderCol string, offset, limit int) ([]Row, error) {
	query := fmt.Sprintf("%s ORDER BY %s OFFSET %d ROWS FETCH NEXT %d ROWS ONLY",
		baseQuery, orderCol, offset, limit)
	return s.Query(ctx, query)
}
