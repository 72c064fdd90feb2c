package formulas

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// PostgresSource reads the coefficient table from the formulas table in PostgreSQL
type PostgresSource struct {
	db *sql.DB
}

// NewPostgresSource creates a PostgreSQL-backed Source
func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

// dbColumn maps a CSV column name onto its SQL column name
func dbColumn(name string) string {
	name = strings.TrimPrefix(name, paramPrefix)
	name = strings.TrimPrefix(name, "formula_")
	return strings.ReplaceAll(name, "2+", "2plus")
}

// dbColumns returns the SQL columns in table order (position excluded)
func dbColumns() []string {
	cols := make([]string, 0, len(Columns()))
	for _, name := range Columns() {
		cols = append(cols, dbColumn(name))
	}
	return cols
}

// Load returns all rows ordered by position
func (s *PostgresSource) Load(ctx context.Context) ([]Formula, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM formulas
		ORDER BY position ASC
	`, strings.Join(dbColumns(), ", "))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query formulas: %w", err)
	}
	defer rows.Close()

	var formulas []Formula
	for rows.Next() {
		var f Formula
		var attempted string

		dest := []any{&f.Key.UsingOwnEggs, &attempted, &f.Key.ReasonKnown, &f.Label}
		for _, c := range numericColumns {
			dest = append(dest, c.ref(&f))
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan formula: %w", err)
		}

		f.Key.PriorAttempt, err = parsePriorAttempt(attempted)
		if err != nil {
			return nil, fmt.Errorf("formula %s: %w", f.Label, err)
		}

		formulas = append(formulas, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating formulas: %w", err)
	}

	if len(formulas) == 0 {
		return nil, fmt.Errorf("formulas table is empty")
	}

	return formulas, nil
}

// Replace deletes every stored row and inserts formulas in order, in one transaction
func (s *PostgresSource) Replace(ctx context.Context, formulas []Formula) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM formulas`); err != nil {
		return fmt.Errorf("failed to clear formulas: %w", err)
	}

	cols := append([]string{"position"}, dbColumns()...)
	placeholders := make([]string, len(cols))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	insert := fmt.Sprintf(`INSERT INTO formulas (%s) VALUES (%s)`,
		strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	for i := range formulas {
		f := formulas[i]
		args := []any{i + 1, f.Key.UsingOwnEggs, f.Key.PriorAttempt.String(), f.Key.ReasonKnown, f.Label}
		for _, c := range numericColumns {
			args = append(args, *c.ref(&f))
		}

		if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return fmt.Errorf("formula %s duplicates branch %s", f.Label, f.Key)
			}
			return fmt.Errorf("failed to insert formula %s: %w", f.Label, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit formulas: %w", err)
	}

	return nil
}

func (s *PostgresSource) Name() string {
	return "postgres"
}
