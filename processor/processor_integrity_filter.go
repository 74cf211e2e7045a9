package processor

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DropReason names why the integrity filter removed a record.
type DropReason string

const (
	DropUnknownRegion  DropReason = "unknown_region"
	DropMissingCountry DropReason = "missing_country"
	DropMissingIDs     DropReason = "missing_ids"
)

// FilterReport is the per-file outcome of FilterRecords.
type FilterReport struct {
	Source   string
	Year     int
	Before   int
	After    int
	Removed  int
	ByReason map[DropReason]int
}

func (r FilterReport) String() string {
	reasons := make([]string, 0, len(r.ByReason))
	for reason := range r.ByReason {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)

	s := fmt.Sprintf("%s: before=%d after=%d removed=%d", r.Source, r.Before, r.After, r.Removed)
	for _, reason := range reasons {
		s += fmt.Sprintf(" %s=%d", reason, r.ByReason[DropReason(reason)])
	}
	return s
}

// FilterRecords drops records with the sentinel region, no country name or
// missing ids. Applying it to its own output removes nothing.
func FilterRecords(batch YearBatch) (YearBatch, FilterReport) {
	report := FilterReport{
		Source:   batch.Source,
		Year:     batch.Year,
		Before:   len(batch.Records),
		ByReason: make(map[DropReason]int),
	}

	out := YearBatch{Year: batch.Year, Source: batch.Source, Records: make([]Record, 0, len(batch.Records))}
	for _, rec := range batch.Records {
		if reason, drop := dropReason(rec); drop {
			report.ByReason[reason]++
			continue
		}
		out.Records = append(out.Records, rec)
	}

	report.After = len(out.Records)
	report.Removed = report.Before - report.After
	return out, report
}

func dropReason(rec Record) (DropReason, bool) {
	switch {
	case !rec.RegionID.Valid || rec.RegionID.Int64 == RegionUnknown:
		return DropUnknownRegion, true
	case rec.CountryName == "":
		return DropMissingCountry, true
	case !rec.HasIDs():
		return DropMissingIDs, true
	}
	return "", false
}

// IntegrityFilter is the pipeline stage wrapping FilterRecords. It also
// keeps the filtered corpus to validate it once the source is drained.
type IntegrityFilter struct {
	processors   []Processor
	failOnIssues bool
	reports      []FilterReport
	corpus       []YearBatch
}

func NewIntegrityFilter(config map[string]interface{}) (*IntegrityFilter, error) {
	f := &IntegrityFilter{}
	if v, ok := config["fail_on_issues"].(bool); ok {
		f.failOnIssues = v
	}
	return f, nil
}

func (f *IntegrityFilter) Subscribe(p Processor) {
	f.processors = append(f.processors, p)
}

func (f *IntegrityFilter) Process(ctx context.Context, msg Message) error {
	batch, err := BatchFromMessage(msg)
	if err != nil {
		return errors.Wrap(err, "IntegrityFilter")
	}

	out, report := FilterRecords(batch)
	f.reports = append(f.reports, report)
	f.corpus = append(f.corpus, out)

	log.WithFields(log.Fields{
		"stage":   "filter",
		"file":    report.Source,
		"before":  report.Before,
		"after":   report.After,
		"removed": report.Removed,
	}).Info("filtered records")

	return forward(ctx, f.processors, out, msg.Metadata)
}

// Reports returns the per-file reports in processing order.
func (f *IntegrityFilter) Reports() []FilterReport {
	return f.reports
}

// CorpusReport validates the corpus filtered so far.
func (f *IntegrityFilter) CorpusReport() CorpusReport {
	return ValidateCorpus(f.corpus)
}

// Close validates the filtered corpus. Issues are logged; they only fail
// the run when fail_on_issues is set.
func (f *IntegrityFilter) Close() error {
	report := f.CorpusReport()
	for _, issue := range report.Issues {
		log.WithFields(log.Fields{"stage": "filter", "kind": issue.Kind}).Warn(issue.String())
	}
	if f.failOnIssues && !report.OK() {
		return errors.Errorf("corpus validation found %d issues", len(report.Issues))
	}
	return nil
}

func (f *IntegrityFilter) Summary() []string {
	lines := make([]string, 0, len(f.reports)+1)
	for _, r := range f.reports {
		lines = append(lines, "filter: "+r.String())
	}
	report := f.CorpusReport()
	lines = append(lines, fmt.Sprintf("filter: %d files, %d records, %d countries, %d issues",
		report.Files, report.Records, report.Countries, len(report.Issues)))
	return lines
}
