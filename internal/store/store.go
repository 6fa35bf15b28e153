// Package store owns the physical database: opening a SQLite snapshot,
// creating the knowledgebase tables and bulk-loading a YAML seed into them.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"io"
	"slices"
	"sort"

	"moalmanac-api/internal/schema"
	"moalmanac-api/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"
)

// DriverSQLite is the database/sql driver name of the embedded store.
const DriverSQLite = "sqlite"

//go:embed schema.sql
var schemaDDL string

// insertBatch caps the rows written by one INSERT statement.
const insertBatch = 100

// LoadOrder lists every physical table so that referenced rows are written
// before the rows pointing at them.
var LoadOrder = []string{
	string(schema.About),
	string(schema.Agents),
	string(schema.Codings),
	string(schema.Mappings),
	string(schema.Diseases),
	string(schema.Genes),
	string(schema.TherapyStrategies),
	string(schema.Therapies),
	schema.TherapiesTherapyStrategies,
	string(schema.TherapyGroups),
	schema.TherapiesTherapyGroups,
	string(schema.Strengths),
	string(schema.Biomarkers),
	schema.BiomarkersGenes,
	string(schema.Propositions),
	schema.BiomarkersPropositions,
	string(schema.Organizations),
	string(schema.Documents),
	string(schema.Indications),
	string(schema.Contributions),
	string(schema.Statements),
	schema.ContributionsStatements,
	schema.DocumentsStatements,
}

// OpenSQLite opens the snapshot at path.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open(DriverSQLite, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// Migrate creates any missing knowledgebase tables.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Seed is a set of rows keyed by physical table name.
type Seed map[string][]map[string]any

// ParseSeed decodes a YAML seed and checks every table and column against
// the schema.
func ParseSeed(r io.Reader) (Seed, error) {
	var seed Seed
	if err := yaml.NewDecoder(r).Decode(&seed); err != nil {
		if err == io.EOF {
			return Seed{}, nil
		}
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	return seed, nil
}

// Validate reports the first unknown table or column.
func (s Seed) Validate() error {
	tables := make([]string, 0, len(s))
	for table := range s {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		columns, ok := schema.PhysicalColumns(table)
		if !ok {
			return fmt.Errorf("seed: unknown table %q", table)
		}
		for i, row := range s[table] {
			for col := range row {
				if !slices.Contains(columns, col) {
					return fmt.Errorf("seed: %s row %d: unknown column %q", table, i, col)
				}
			}
		}
	}
	return nil
}

// Load inserts the seed in one transaction and returns the number of rows
// written. Columns missing from a row are written as NULL.
func (s Seed) Load(ctx context.Context, db *sql.DB) (int, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer tx.Rollback()

	total := 0
	for _, table := range LoadOrder {
		rows := s[table]
		if len(rows) == 0 {
			continue
		}
		columns, _ := schema.PhysicalColumns(table)
		quoted := make([]string, len(columns))
		for i, c := range columns {
			quoted[i] = sqlutil.QuoteIdentifier(c)
		}

		for start := 0; start < len(rows); start += insertBatch {
			end := start + insertBatch
			if end > len(rows) {
				end = len(rows)
			}
			insert := sq.Insert(sqlutil.QuoteIdentifier(table)).Columns(quoted...)
			for _, row := range rows[start:end] {
				values := make([]interface{}, len(columns))
				for i, c := range columns {
					values[i] = row[c]
				}
				insert = insert.Values(values...)
			}
			query, args, err := insert.PlaceholderFormat(sq.Question).ToSql()
			if err != nil {
				return 0, fmt.Errorf("seed %s: %w", table, err)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return 0, fmt.Errorf("seed %s: %w", table, err)
			}
		}
		total += len(rows)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit seed: %w", err)
	}
	return total, nil
}
