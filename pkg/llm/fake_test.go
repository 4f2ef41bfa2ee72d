package llm_test

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

type call struct {
	sql  string
	args []any
}

// fakeDB answers every QueryRow with the configured value.
type fakeDB struct {
	calls     []call
	embedding []float32
	generated *string
	err       error
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.calls = append(f.calls, call{sql: sql, args: args})
	return fakeRow{db: f}
}

type fakeRow struct {
	db *fakeDB
}

func (r fakeRow) Scan(dest ...any) error {
	if r.db.err != nil {
		return r.db.err
	}
	switch d := dest[0].(type) {
	case *pgvector.Vector:
		*d = pgvector.NewVector(r.db.embedding)
	case **string:
		*d = r.db.generated
	default:
		return errors.New("unexpected scan target")
	}
	return nil
}

func strPtr(s string) *string {
	return &s
}
