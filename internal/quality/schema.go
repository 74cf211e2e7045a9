package quality

import (
	"fmt"
	"strings"
)

type column struct {
	name     string
	sqlType  string
	nullable bool
	ref      string // "table(column)" for a foreign key
}

type tableDef struct {
	name    string
	key     string
	columns []column
}

// schema is the six-table happiness schema in dependency order.
var schema = []tableDef{
	{name: "region", key: "region_id", columns: []column{
		{name: "region_id", sqlType: "INTEGER"},
		{name: "region_name", sqlType: "VARCHAR(100)"},
	}},
	{name: "country", key: "country_id", columns: []column{
		{name: "country_id", sqlType: "INTEGER"},
		{name: "country_name", sqlType: "VARCHAR(100)"},
		{name: "region_id", sqlType: "INTEGER", ref: "region(region_id)"},
	}},
	{name: "happiness_report", key: "report_id", columns: []column{
		{name: "report_id", sqlType: "INTEGER"},
		{name: "country_id", sqlType: "INTEGER", ref: "country(country_id)"},
		{name: "year", sqlType: "INTEGER"},
		{name: "ranking", sqlType: "INTEGER", nullable: true},
		{name: "happiness_score", sqlType: "DECIMAL(5,3)", nullable: true},
		{name: "dystopia_residual", sqlType: "DECIMAL(6,3)", nullable: true},
	}},
	{name: "economic_indicator", key: "economic_id", columns: []column{
		{name: "economic_id", sqlType: "INTEGER"},
		{name: "report_id", sqlType: "INTEGER", ref: "happiness_report(report_id)"},
		{name: "gdp_per_capita", sqlType: "DECIMAL(6,3)", nullable: true},
	}},
	{name: "social_indicator", key: "social_id", columns: []column{
		{name: "social_id", sqlType: "INTEGER"},
		{name: "report_id", sqlType: "INTEGER", ref: "happiness_report(report_id)"},
		{name: "social_support", sqlType: "DECIMAL(6,3)", nullable: true},
		{name: "healthy_life_expectancy", sqlType: "DECIMAL(6,3)", nullable: true},
		{name: "freedom_to_make_life_choices", sqlType: "DECIMAL(6,3)", nullable: true},
	}},
	{name: "perception_indicator", key: "perception_id", columns: []column{
		{name: "perception_id", sqlType: "INTEGER"},
		{name: "report_id", sqlType: "INTEGER", ref: "happiness_report(report_id)"},
		{name: "generosity", sqlType: "DECIMAL(6,3)", nullable: true},
		{name: "perceptions_of_corruption", sqlType: "DECIMAL(6,3)", nullable: true},
	}},
}

// ddl renders CREATE TABLE statements. DuckDB enforces declared foreign
// keys unconditionally, so they are only declared there when enforce is set.
// SQLite always declares them and toggles enforcement with a pragma.
func ddl(engine Engine, enforce bool) []string {
	stmts := make([]string, 0, len(schema))
	for _, t := range schema {
		var defs []string
		for _, c := range t.columns {
			def := fmt.Sprintf("%s %s", c.name, c.sqlType)
			if c.name == t.key {
				def += " PRIMARY KEY"
			} else if !c.nullable {
				def += " NOT NULL"
			}
			defs = append(defs, def)
		}
		for _, c := range t.columns {
			if c.ref == "" || (engine == EngineDuckDB && !enforce) {
				continue
			}
			defs = append(defs, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s", c.name, c.ref))
		}
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", t.name, strings.Join(defs, ",\n  ")))
	}
	return stmts
}

type foreignKey struct {
	table, column, parent, parentColumn string
}

func (fk foreignKey) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s", fk.table, fk.column, fk.parent, fk.parentColumn)
}

func foreignKeys() []foreignKey {
	var out []foreignKey
	for _, t := range schema {
		for _, c := range t.columns {
			if c.ref == "" {
				continue
			}
			open := strings.Index(c.ref, "(")
			out = append(out, foreignKey{
				table:        t.name,
				column:       c.name,
				parent:       c.ref[:open],
				parentColumn: strings.TrimSuffix(c.ref[open+1:], ")"),
			})
		}
	}
	return out
}
