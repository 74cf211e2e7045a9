// Package quality loads an emitted DML script into an in-memory database
// and checks the loaded tables for integrity problems.
package quality

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Engine selects the in-memory database used for verification.
type Engine string

const (
	EngineSQLite Engine = "sqlite"
	EngineDuckDB Engine = "duckdb"
)

// ParseEngine accepts "sqlite" or "duckdb"; empty means sqlite.
func ParseEngine(s string) (Engine, error) {
	switch Engine(strings.ToLower(strings.TrimSpace(s))) {
	case "", EngineSQLite:
		return EngineSQLite, nil
	case EngineDuckDB:
		return EngineDuckDB, nil
	}
	return "", errors.Errorf("unknown engine %q (want sqlite or duckdb)", s)
}

type Options struct {
	Engine Engine
	// EnforceForeignKeys rejects the script at load time on the first
	// dangling reference instead of reporting orphans afterwards.
	EnforceForeignKeys bool
}

type TableCount struct {
	Table string
	Rows  int64
}

type YearCount struct {
	Year    int
	Reports int64
}

// Completeness is the share of reports that have a row in an indicator table.
type Completeness struct {
	Table   string
	Reports int64
	Percent float64
}

type NullCount struct {
	Table  string
	Column string
	Nulls  int64
}

type Orphans struct {
	Key   string
	Count int64
}

// Report is the outcome of Verify.
type Report struct {
	Engine         Engine
	Statements     int
	Fabricated     int
	Counts         []TableCount
	Nulls          []NullCount
	DuplicatePairs int64
	DuplicateNames int64
	Orphans        []Orphans
	Years          []YearCount
	Completeness   []Completeness
	ScoreMin       sql.NullFloat64
	ScoreMax       sql.NullFloat64
	RankingMin     sql.NullInt64
	RankingMax     sql.NullInt64
	OutOfRange     int64
}

// OrphanTotal sums dangling references over every foreign key.
func (r *Report) OrphanTotal() int64 {
	var n int64
	for _, o := range r.Orphans {
		n += o.Count
	}
	return n
}

// OK reports whether the data has no orphans and no duplicate
// (country_id, year) pairs. Nulls and ranges are warnings only.
func (r *Report) OK() bool {
	return r.OrphanTotal() == 0 && r.DuplicatePairs == 0
}

// Problems lists the findings that make OK false, then the warnings.
func (r *Report) Problems() []string {
	var out []string
	for _, o := range r.Orphans {
		if o.Count > 0 {
			out = append(out, fmt.Sprintf("%d orphan rows for %s", o.Count, o.Key))
		}
	}
	if r.DuplicatePairs > 0 {
		out = append(out, fmt.Sprintf("%d duplicate (country_id, year) pairs", r.DuplicatePairs))
	}
	if r.DuplicateNames > 0 {
		out = append(out, fmt.Sprintf("warning: %d duplicate country names", r.DuplicateNames))
	}
	for _, n := range r.Nulls {
		if n.Nulls > 0 {
			out = append(out, fmt.Sprintf("warning: %s.%s has %d NULLs", n.Table, n.Column, n.Nulls))
		}
	}
	if r.OutOfRange > 0 {
		out = append(out, fmt.Sprintf("warning: %d reports with score outside [0, 10] or ranking below 1", r.OutOfRange))
	}
	return out
}

// Lines renders the report for the console.
func (r *Report) Lines() []string {
	lines := []string{fmt.Sprintf("engine %s, %d statements, %d fabricated rows", r.Engine, r.Statements, r.Fabricated)}
	for _, c := range r.Counts {
		lines = append(lines, fmt.Sprintf("  %-22s %d rows", c.Table, c.Rows))
	}
	for _, y := range r.Years {
		lines = append(lines, fmt.Sprintf("  year %d: %d reports", y.Year, y.Reports))
	}
	for _, c := range r.Completeness {
		lines = append(lines, fmt.Sprintf("  %-22s %d reports covered (%.1f%%)", c.Table, c.Reports, c.Percent))
	}
	if r.ScoreMin.Valid {
		lines = append(lines, fmt.Sprintf("  happiness_score range %.3f .. %.3f", r.ScoreMin.Float64, r.ScoreMax.Float64))
	}
	if r.RankingMin.Valid {
		lines = append(lines, fmt.Sprintf("  ranking range %d .. %d", r.RankingMin.Int64, r.RankingMax.Int64))
	}
	lines = append(lines, fmt.Sprintf("  orphans %d, duplicate pairs %d, duplicate names %d", r.OrphanTotal(), r.DuplicatePairs, r.DuplicateNames))
	return lines
}

// VerifyFile reads a DML file and verifies it.
func VerifyFile(ctx context.Context, path string, opts Options) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read DML file")
	}
	return Verify(ctx, string(data), opts)
}

// Verify loads script into a fresh in-memory database and runs the checks.
func Verify(ctx context.Context, script string, opts Options) (*Report, error) {
	if opts.Engine == "" {
		opts.Engine = EngineSQLite
	}
	db, err := open(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	for _, stmt := range ddl(opts.Engine, opts.EnforceForeignKeys) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, errors.Wrap(err, "failed to create schema")
		}
	}

	stmts := SplitStatements(script)
	if len(stmts) == 0 {
		return nil, errors.New("DML script has no statements")
	}
	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, errors.Wrapf(err, "statement %d failed", i+1)
		}
	}

	r := &Report{
		Engine:     opts.Engine,
		Statements: len(stmts),
		Fabricated: strings.Count(script, "-- fabricated"),
	}
	if err := r.collect(ctx, db); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"engine":     r.Engine,
		"statements": r.Statements,
		"orphans":    r.OrphanTotal(),
		"duplicates": r.DuplicatePairs,
	}).Info("verified DML")
	return r, nil
}

func open(ctx context.Context, opts Options) (*sql.DB, error) {
	switch opts.Engine {
	case EngineSQLite:
		db, err := sql.Open("sqlite", ":memory:")
		if err != nil {
			return nil, errors.Wrap(err, "failed to open sqlite")
		}
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
		pragma := "PRAGMA foreign_keys = OFF"
		if opts.EnforceForeignKeys {
			pragma = "PRAGMA foreign_keys = ON"
		}
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "failed to set foreign key mode")
		}
		return db, nil
	case EngineDuckDB:
		db, err := sql.Open("duckdb", "")
		if err != nil {
			return nil, errors.Wrap(err, "failed to open duckdb")
		}
		db.SetMaxOpenConns(1)
		return db, nil
	}
	return nil, errors.Errorf("unsupported engine %q", opts.Engine)
}

func (r *Report) collect(ctx context.Context, db *sql.DB) error {
	count := func(query string) (int64, error) {
		var n int64
		err := db.QueryRowContext(ctx, query).Scan(&n)
		return n, errors.Wrapf(err, "query failed: %s", query)
	}

	for _, t := range schema {
		n, err := count("SELECT COUNT(*) FROM " + t.name)
		if err != nil {
			return err
		}
		r.Counts = append(r.Counts, TableCount{Table: t.name, Rows: n})

		for _, c := range t.columns {
			n, err := count(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL", t.name, c.name))
			if err != nil {
				return err
			}
			r.Nulls = append(r.Nulls, NullCount{Table: t.name, Column: c.name, Nulls: n})
		}
	}

	for _, fk := range foreignKeys() {
		n, err := count(fmt.Sprintf(
			"SELECT COUNT(*) FROM %s c LEFT JOIN %s p ON c.%s = p.%s WHERE p.%s IS NULL",
			fk.table, fk.parent, fk.column, fk.parentColumn, fk.parentColumn))
		if err != nil {
			return err
		}
		r.Orphans = append(r.Orphans, Orphans{Key: fk.String(), Count: n})
	}

	var err error
	if r.DuplicatePairs, err = count(
		"SELECT COUNT(*) FROM (SELECT country_id, year FROM happiness_report GROUP BY country_id, year HAVING COUNT(*) > 1) d"); err != nil {
		return err
	}
	if r.DuplicateNames, err = count(
		"SELECT COUNT(*) FROM (SELECT country_name FROM country GROUP BY country_name HAVING COUNT(*) > 1) d"); err != nil {
		return err
	}
	if r.OutOfRange, err = count(
		"SELECT COUNT(*) FROM happiness_report WHERE happiness_score < 0 OR happiness_score > 10 OR ranking < 1"); err != nil {
		return err
	}

	rows, err := db.QueryContext(ctx, "SELECT year, COUNT(*) FROM happiness_report GROUP BY year ORDER BY year")
	if err != nil {
		return errors.Wrap(err, "year distribution query failed")
	}
	defer rows.Close()
	for rows.Next() {
		var y YearCount
		if err := rows.Scan(&y.Year, &y.Reports); err != nil {
			return errors.Wrap(err, "failed to scan year distribution")
		}
		r.Years = append(r.Years, y)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "year distribution query failed")
	}

	reports := r.Counts[2].Rows
	for _, table := range []string{"economic_indicator", "social_indicator", "perception_indicator"} {
		n, err := count(fmt.Sprintf(
			"SELECT COUNT(*) FROM happiness_report h WHERE EXISTS (SELECT 1 FROM %s i WHERE i.report_id = h.report_id)", table))
		if err != nil {
			return err
		}
		c := Completeness{Table: table, Reports: n}
		if reports > 0 {
			c.Percent = float64(n) * 100 / float64(reports)
		}
		r.Completeness = append(r.Completeness, c)
	}

	err = db.QueryRowContext(ctx,
		"SELECT CAST(MIN(happiness_score) AS DOUBLE), CAST(MAX(happiness_score) AS DOUBLE), MIN(ranking), MAX(ranking) FROM happiness_report").
		Scan(&r.ScoreMin, &r.ScoreMax, &r.RankingMin, &r.RankingMax)
	return errors.Wrap(err, "range query failed")
}
