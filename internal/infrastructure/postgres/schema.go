package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migration script SQL embebido.
type Migration struct {
	Name string
	SQL  string
}

// Migrations devuelve los scripts en orden de nombre.
func Migrations() ([]Migration, error) {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	out := make([]Migration, 0, len(names))
	for _, n := range names {
		raw, err := migrations.ReadFile(n)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", n, err)
		}
		out = append(out, Migration{Name: n, SQL: string(raw)})
	}
	return out, nil
}

// Migrate ejecuta todos los scripts. Son idempotentes (IF NOT EXISTS).
func Migrate(ctx context.Context, q Querier) error {
	ms, err := Migrations()
	if err != nil {
		return err
	}
	for _, m := range ms {
		if _, err := q.Exec(ctx, m.SQL); err != nil {
			return fmt.Errorf("migrate %s: %w", m.Name, err)
		}
	}
	return nil
}
