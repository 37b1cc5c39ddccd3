package procedures

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresCatalog reads the procedures table.
type PostgresCatalog struct {
	db pgxQuerier
}

var _ Catalog = (*PostgresCatalog)(nil)

func NewPostgresCatalog(pool *pgxpool.Pool) *PostgresCatalog {
	if pool == nil {
		panic("procedures: pgx pool required")
	}
	return &PostgresCatalog{db: pool}
}

func newPostgresCatalogWithDB(db pgxQuerier) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

const procedureColumns = `id, clinic_id, name, price_cents, default_duration`

func (c *PostgresCatalog) ByID(ctx context.Context, clinicID string, id int64) (*Procedure, error) {
	query := `SELECT ` + procedureColumns + ` FROM procedures WHERE id = $1 AND clinic_id = $2`
	return scanProcedure(c.db.QueryRow(ctx, query, id, clinicID))
}

func (c *PostgresCatalog) ByName(ctx context.Context, clinicID, name string) (*Procedure, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrProcedureNotFound
	}
	query := `
		SELECT ` + procedureColumns + `
		FROM procedures
		WHERE clinic_id = $1 AND name ILIKE '%' || $2 || '%' ESCAPE '\'
		ORDER BY lower(name) = lower($3) DESC, id
		LIMIT 1`
	return scanProcedure(c.db.QueryRow(ctx, query, clinicID, escapeLike(name), name))
}

func (c *PostgresCatalog) List(ctx context.Context, clinicID string) ([]Procedure, error) {
	query := `SELECT ` + procedureColumns + ` FROM procedures WHERE clinic_id = $1 ORDER BY id`
	rows, err := c.db.Query(ctx, query, clinicID)
	if err != nil {
		return nil, fmt.Errorf("procedures: list: %w", err)
	}
	defer rows.Close()

	var out []Procedure
	for rows.Next() {
		var p Procedure
		if err := rows.Scan(&p.ID, &p.ClinicID, &p.Name, &p.PriceCents, &p.DefaultDuration); err != nil {
			return nil, fmt.Errorf("procedures: scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProcedure(row pgx.Row) (*Procedure, error) {
	var p Procedure
	if err := row.Scan(&p.ID, &p.ClinicID, &p.Name, &p.PriceCents, &p.DefaultDuration); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProcedureNotFound
		}
		return nil, fmt.Errorf("procedures: query failed: %w", err)
	}
	return &p, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
