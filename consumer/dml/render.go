package dml

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/withObsrvr/whr-pipeline/utils"
)

// FabricatedMarker trails every SQL row that dense mode invented.
const FabricatedMarker = "-- fabricated"

const rule = "-- ============================================================"

// RenderOptions stamps the banner. Zero values are filled in by Render.
type RenderOptions struct {
	RunID       string
	GeneratedAt time.Time
}

type table struct {
	name       string
	columns    []string
	rows       [][]string
	fabricated []bool
}

func (d *Dataset) tables() []table {
	region := table{name: "region", columns: []string{"region_id", "region_name"}}
	for _, r := range d.Regions {
		region.rows = append(region.rows, []string{itoa(r.ID), quote(r.Name)})
	}

	country := table{name: "country", columns: []string{"country_id", "country_name", "region_id"}}
	for _, c := range d.Countries {
		country.rows = append(country.rows, []string{itoa(c.ID), quote(c.Name), itoa(c.RegionID)})
	}

	report := table{name: "happiness_report", columns: []string{"report_id", "country_id", "year", "ranking", "happiness_score", "dystopia_residual"}}
	for _, r := range d.Reports {
		report.rows = append(report.rows, []string{
			itoa(r.ID), itoa(r.CountryID), strconv.Itoa(r.Year), itoa(r.Ranking),
			utils.FormatFixed(r.Score, ScorePlaces), utils.FormatFixed(r.Residual, ResidualPlaces),
		})
		report.fabricated = append(report.fabricated, r.Fabricated)
	}

	// satellites share the report's fabricated flag by position
	economic := table{name: "economic_indicator", columns: []string{"economic_id", "report_id", "gdp_per_capita"}, fabricated: report.fabricated}
	for _, e := range d.Economic {
		economic.rows = append(economic.rows, []string{itoa(e.ID), itoa(e.ReportID), utils.FormatFixed(e.GDP, GDPPlaces)})
	}

	social := table{name: "social_indicator", columns: []string{"social_id", "report_id", "social_support", "healthy_life_expectancy", "freedom_to_make_life_choices"}, fabricated: report.fabricated}
	for _, s := range d.Social {
		social.rows = append(social.rows, []string{
			itoa(s.ID), itoa(s.ReportID),
			utils.FormatFixed(s.SocialSupport, SocialPlaces), utils.FormatFixed(s.HealthyLife, HealthyPlaces), utils.FormatFixed(s.Freedom, FreedomPlaces),
		})
	}

	perception := table{name: "perception_indicator", columns: []string{"perception_id", "report_id", "generosity", "perceptions_of_corruption"}, fabricated: report.fabricated}
	for _, p := range d.Perception {
		perception.rows = append(perception.rows, []string{
			itoa(p.ID), itoa(p.ReportID),
			utils.FormatFixed(p.Generosity, GenerosityPlaces), utils.FormatFixed(p.Corruption, CorruptionPlaces),
		})
	}

	return []table{region, country, report, economic, social, perception}
}

// Render writes the banner, one INSERT per table and the trailer.
func Render(w io.Writer, d *Dataset, opts RenderOptions) error {
	if d == nil {
		return errors.New("nil dataset")
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.GeneratedAt.IsZero() {
		opts.GeneratedAt = time.Now()
	}

	bw := bufio.NewWriter(w)
	p := func(format string, args ...interface{}) {
		fmt.Fprintf(bw, format+"\n", args...)
	}

	p("-- DML (Data Manipulation Language) - World Happiness Report Database")
	p("-- Run: %s", opts.RunID)
	p("-- Generated: %s", opts.GeneratedAt.Format("2006-01-02 15:04:05"))
	p("-- Mode: %s, seed %d, fabricated rows %d, filled cells %d", d.Mode, d.Seed, d.Fabricated, d.FilledCells)
	p("-- Dataset: %d countries x %d years%s", len(d.Countries), len(d.Years), yearSpan(d.Years))
	counts := make([]string, 0, 6)
	for _, c := range d.Counts() {
		counts = append(counts, fmt.Sprintf("%s=%d", c.Table, c.Rows))
	}
	p("-- Rows: %s", strings.Join(counts, " "))
	p(rule)
	p("")

	for _, t := range d.tables() {
		p(rule)
		p("-- INSERT %s DATA (%d records)", strings.ToUpper(t.name), len(t.rows))
		p(rule)
		if len(t.rows) == 0 {
			p("-- %s: no rows", t.name)
			p("")
			continue
		}
		p("INSERT INTO %s (%s) VALUES", t.name, strings.Join(t.columns, ", "))
		for i, row := range t.rows {
			sep := ","
			if i == len(t.rows)-1 {
				sep = ";"
			}
			line := "(" + strings.Join(row, ", ") + ")" + sep
			if i < len(t.fabricated) && t.fabricated[i] {
				line += " " + FabricatedMarker
			}
			p("%s", line)
		}
		p("")
	}

	p(rule)
	p("-- END OF DML")
	p(rule)

	return errors.Wrap(bw.Flush(), "write dml")
}

func yearSpan(years []int) string {
	if len(years) == 0 {
		return ""
	}
	return fmt.Sprintf(" (%d-%d)", years[0], years[len(years)-1])
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
