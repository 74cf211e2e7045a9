// Package dml turns the cleaned yearly corpus into rows of the six-table
// happiness schema and renders them as SQL INSERT statements.
package dml

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/withObsrvr/whr-pipeline/processor"
	"github.com/withObsrvr/whr-pipeline/utils"
)

// Mode selects how the report matrix is filled.
type Mode string

const (
	// ModeStrict emits only observed (country, year) pairs.
	ModeStrict Mode = "strict"
	// ModeDense emits every country for every year, fabricating gaps.
	ModeDense Mode = "dense"
)

const (
	// ReportBase is the first report id handed out.
	ReportBase int64 = 10001
	// DefaultSeed seeds dense fabrication when no seed is configured.
	DefaultSeed int64 = 42

	strictResidual = 0.1
)

// ParseMode accepts "strict" or "dense"; empty means strict.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeStrict:
		return ModeStrict, nil
	case ModeDense:
		return ModeDense, nil
	}
	return "", errors.Errorf("unknown emit mode %q (want strict or dense)", s)
}

// Decimal places per emitted measure.
const (
	ScorePlaces      int32 = 2
	ResidualPlaces   int32 = 3
	GDPPlaces        int32 = 2
	SocialPlaces     int32 = 2
	HealthyPlaces    int32 = 2
	FreedomPlaces    int32 = 2
	GenerosityPlaces int32 = 3
	CorruptionPlaces int32 = 3
)

type span struct{ lo, hi float64 }

// Fabrication ranges for dense mode.
var (
	scoreRange      = span{3.0, 7.5}
	residualRange   = span{0.1, 0.2}
	gdpRange        = span{0.3, 1.5}
	socialRange     = span{0.5, 1.5}
	healthyRange    = span{0.3, 1.0}
	freedomRange    = span{0.2, 0.6}
	generosityRange = span{-0.1, 0.3}
	corruptionRange = span{0.05, 0.5}
)

// Options controls Build.
type Options struct {
	Mode Mode
	Seed int64
	// Years fixes the dense year axis. Empty means the years present in
	// the corpus. Ignored in strict mode.
	Years []int
}

type Region struct {
	ID   int64
	Name string
}

type Country struct {
	ID       int64
	Name     string
	RegionID int64
}

// Report is one happiness_report row.
type Report struct {
	ID         int64
	CountryID  int64
	Year       int
	Ranking    int64
	Score      float64
	Residual   float64
	Fabricated bool
}

type Economic struct {
	ID       int64
	ReportID int64
	GDP      float64
}

type Social struct {
	ID            int64
	ReportID      int64
	SocialSupport float64
	HealthyLife   float64
	Freedom       float64
}

type Perception struct {
	ID         int64
	ReportID   int64
	Generosity float64
	Corruption float64
}

// Dataset holds every row of the six tables.
type Dataset struct {
	Mode  Mode
	Seed  int64
	Years []int

	Regions     []Region
	Countries   []Country
	Reports     []Report
	Economic    []Economic
	Social      []Social
	Perception  []Perception
	Fabricated  int
	FilledCells int
	Skipped     int
}

type pair struct {
	countryID int64
	year      int
}

// Build assembles the dataset from the filtered corpus. Records without
// ids or with the unknown region are skipped. It returns
// processor.ErrEmptyCorpus when no usable record remains.
func Build(batches []processor.YearBatch, opts Options) (*Dataset, error) {
	if opts.Mode == "" {
		opts.Mode = ModeStrict
	}
	d := &Dataset{Mode: opts.Mode, Seed: opts.Seed}
	for _, r := range processor.Regions() {
		d.Regions = append(d.Regions, Region{ID: r.ID, Name: r.Name})
	}

	countries := make(map[int64]Country)
	observed := make(map[pair]processor.Record)
	yearSet := make(map[int]bool)

	for _, batch := range batches {
		for _, rec := range batch.Records {
			if !rec.HasIDs() || rec.RegionID.Int64 == processor.RegionUnknown || rec.CountryName == "" {
				d.Skipped++
				continue
			}
			id := rec.CountryID.Int64
			if _, ok := countries[id]; !ok {
				countries[id] = Country{ID: id, Name: rec.CountryName, RegionID: rec.RegionID.Int64}
			}
			key := pair{id, batch.Year}
			if _, dup := observed[key]; dup {
				d.Skipped++
				continue
			}
			observed[key] = rec
			yearSet[batch.Year] = true
		}
	}
	if len(observed) == 0 {
		return nil, processor.ErrEmptyCorpus
	}

	for _, c := range countries {
		d.Countries = append(d.Countries, c)
	}
	sort.Slice(d.Countries, func(i, j int) bool { return d.Countries[i].ID < d.Countries[j].ID })

	if opts.Mode == ModeDense && len(opts.Years) > 0 {
		d.Years = normalizeYears(opts.Years)
		inRange := make(map[int]bool, len(d.Years))
		for _, y := range d.Years {
			inRange[y] = true
		}
		// observed years outside the requested range are not emitted
		for key := range observed {
			if !inRange[key.year] {
				d.Skipped++
			}
		}
	} else {
		for y := range yearSet {
			d.Years = append(d.Years, y)
		}
		sort.Ints(d.Years)
	}

	f := &filler{
		dense:    opts.Mode == ModeDense,
		rng:      rand.New(rand.NewSource(opts.Seed)),
		rankings: int64(len(d.Countries)),
	}

	reportID := ReportBase
	for _, c := range d.Countries {
		for _, year := range d.Years {
			rec, ok := observed[pair{c.ID, year}]
			if !ok && !f.dense {
				continue
			}
			d.add(reportID, c.ID, year, rec, !ok, f)
			reportID++
		}
	}
	d.FilledCells = f.filled
	return d, nil
}

func (d *Dataset) add(reportID, countryID int64, year int, rec processor.Record, fabricated bool, f *filler) {
	ranking := f.ranking(rec.Ranking.Valid, rec.Ranking.Int64, fabricated)
	score := f.value(rec.HappinessScore.Valid, rec.HappinessScore.Float64, scoreRange, 0, ScorePlaces, fabricated)
	residual := f.value(rec.Residual.Valid, rec.Residual.Float64, residualRange, strictResidual, ResidualPlaces, fabricated)
	gdp := f.value(rec.GDPPerCapita.Valid, rec.GDPPerCapita.Float64, gdpRange, 0, GDPPlaces, fabricated)
	social := f.value(rec.SocialSupport.Valid, rec.SocialSupport.Float64, socialRange, 0, SocialPlaces, fabricated)
	healthy := f.value(rec.HealthyLife.Valid, rec.HealthyLife.Float64, healthyRange, 0, HealthyPlaces, fabricated)
	freedom := f.value(rec.Freedom.Valid, rec.Freedom.Float64, freedomRange, 0, FreedomPlaces, fabricated)
	generosity := f.value(rec.Generosity.Valid, rec.Generosity.Float64, generosityRange, 0, GenerosityPlaces, fabricated)
	corruption := f.value(rec.Corruption.Valid, rec.Corruption.Float64, corruptionRange, 0, CorruptionPlaces, fabricated)

	if fabricated {
		d.Fabricated++
	}
	sat := processor.DeriveSatelliteIDs(reportID)
	d.Reports = append(d.Reports, Report{
		ID: reportID, CountryID: countryID, Year: year,
		Ranking: ranking, Score: score, Residual: residual, Fabricated: fabricated,
	})
	d.Economic = append(d.Economic, Economic{ID: sat.Economic, ReportID: reportID, GDP: gdp})
	d.Social = append(d.Social, Social{ID: sat.Social, ReportID: reportID, SocialSupport: social, HealthyLife: healthy, Freedom: freedom})
	d.Perception = append(d.Perception, Perception{ID: sat.Perception, ReportID: reportID, Generosity: generosity, Corruption: corruption})
}

// filler resolves missing measures: seeded draws in dense mode, fixed
// defaults in strict mode. Draw order follows the report order, so a seed
// always yields the same dataset.
type filler struct {
	dense    bool
	rng      *rand.Rand
	rankings int64
	filled   int
}

func (f *filler) ranking(ok bool, v int64, fabricated bool) int64 {
	if ok {
		return v
	}
	if !f.dense {
		return 0
	}
	if !fabricated {
		f.filled++
	}
	return f.rng.Int63n(f.rankings) + 1
}

func (f *filler) value(ok bool, v float64, r span, strictDefault float64, places int32, fabricated bool) float64 {
	if ok {
		return utils.Round(v, places)
	}
	if !f.dense {
		return strictDefault
	}
	if !fabricated {
		f.filled++
	}
	return utils.Round(r.lo+f.rng.Float64()*(r.hi-r.lo), places)
}

func normalizeYears(years []int) []int {
	seen := make(map[int]bool, len(years))
	out := make([]int, 0, len(years))
	for _, y := range years {
		if !seen[y] {
			seen[y] = true
			out = append(out, y)
		}
	}
	sort.Ints(out)
	return out
}

// YearRange lists the years from..to inclusive.
func YearRange(from, to int) []int {
	if to < from {
		return nil
	}
	out := make([]int, 0, to-from+1)
	for y := from; y <= to; y++ {
		out = append(out, y)
	}
	return out
}

// TableCount is the row count of one table.
type TableCount struct {
	Table string
	Rows  int
}

// Counts lists row counts in insert order.
func (d *Dataset) Counts() []TableCount {
	return []TableCount{
		{"region", len(d.Regions)},
		{"country", len(d.Countries)},
		{"happiness_report", len(d.Reports)},
		{"economic_indicator", len(d.Economic)},
		{"social_indicator", len(d.Social)},
		{"perception_indicator", len(d.Perception)},
	}
}

// CheckReferences verifies key uniqueness and that every foreign key
// resolves. It returns one message per violation.
func (d *Dataset) CheckReferences() []string {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	regions := make(map[int64]bool)
	for _, r := range d.Regions {
		regions[r.ID] = true
	}
	countries := make(map[int64]bool)
	for _, c := range d.Countries {
		if countries[c.ID] {
			add("duplicate country_id %d", c.ID)
		}
		countries[c.ID] = true
		if !regions[c.RegionID] {
			add("country %d references missing region %d", c.ID, c.RegionID)
		}
	}

	reports := make(map[int64]bool)
	pairs := make(map[pair]bool)
	for _, r := range d.Reports {
		if reports[r.ID] {
			add("duplicate report_id %d", r.ID)
		}
		reports[r.ID] = true
		if !countries[r.CountryID] {
			add("report %d references missing country %d", r.ID, r.CountryID)
		}
		key := pair{r.CountryID, r.Year}
		if pairs[key] {
			add("duplicate (country_id, year) (%d, %d)", r.CountryID, r.Year)
		}
		pairs[key] = true
	}

	for _, e := range d.Economic {
		if !reports[e.ReportID] {
			add("economic_indicator %d references missing report %d", e.ID, e.ReportID)
		}
	}
	for _, s := range d.Social {
		if !reports[s.ReportID] {
			add("social_indicator %d references missing report %d", s.ID, s.ReportID)
		}
	}
	for _, p := range d.Perception {
		if !reports[p.ReportID] {
			add("perception_indicator %d references missing report %d", p.ID, p.ReportID)
		}
	}
	return problems
}
