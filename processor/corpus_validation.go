package processor

import "fmt"

// IssueKind classifies a corpus validation finding.
type IssueKind string

const (
	IssueMissingIDs        IssueKind = "missing_ids"
	IssueDuplicateReport   IssueKind = "duplicate_report_id"
	IssueDuplicatePair     IssueKind = "duplicate_country_year"
	IssueCountryIDConflict IssueKind = "country_id_conflict"
	IssueSatelliteMismatch IssueKind = "satellite_id_mismatch"
)

// Issue is one finding of ValidateCorpus.
type Issue struct {
	Kind    IssueKind
	Year    int
	Country string
	Detail  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: year=%d country=%q %s", i.Kind, i.Year, i.Country, i.Detail)
}

// CorpusReport summarizes the identifier state of the whole corpus.
type CorpusReport struct {
	Files     int
	Records   int
	Countries int
	Issues    []Issue
}

func (r CorpusReport) OK() bool {
	return len(r.Issues) == 0
}

type pairKey struct {
	countryID int64
	year      int
}

// ValidateCorpus checks that ids are present, report ids and
// (country, year) pairs are unique, names and country ids map one-to-one
// and satellite ids follow the report id.
func ValidateCorpus(batches []YearBatch) CorpusReport {
	report := CorpusReport{Files: len(batches)}

	reports := make(map[int64]string)
	pairs := make(map[pairKey]bool)
	idByName := make(map[string]int64)
	nameByID := make(map[int64]string)

	add := func(kind IssueKind, year int, country, detail string, args ...interface{}) {
		report.Issues = append(report.Issues, Issue{Kind: kind, Year: year, Country: country, Detail: fmt.Sprintf(detail, args...)})
	}

	for _, batch := range batches {
		for _, rec := range batch.Records {
			report.Records++
			if !rec.HasIDs() {
				add(IssueMissingIDs, batch.Year, rec.CountryName, "record lacks one or more id fields")
				continue
			}

			reportID := rec.ReportID.Int64
			if prev, seen := reports[reportID]; seen {
				add(IssueDuplicateReport, batch.Year, rec.CountryName, "report_id %d already used by %s", reportID, prev)
			}
			reports[reportID] = fmt.Sprintf("%s/%d", rec.CountryName, batch.Year)

			key := pairKey{rec.CountryID.Int64, batch.Year}
			if pairs[key] {
				add(IssueDuplicatePair, batch.Year, rec.CountryName, "country_id %d appears twice", key.countryID)
			}
			pairs[key] = true

			if id, ok := idByName[rec.CountryName]; ok && id != rec.CountryID.Int64 {
				add(IssueCountryIDConflict, batch.Year, rec.CountryName, "country_id %d, previously %d", rec.CountryID.Int64, id)
			} else if !ok {
				idByName[rec.CountryName] = rec.CountryID.Int64
			}
			if name, ok := nameByID[rec.CountryID.Int64]; ok && name != rec.CountryName {
				add(IssueCountryIDConflict, batch.Year, rec.CountryName, "country_id %d already names %q", rec.CountryID.Int64, name)
			} else if !ok {
				nameByID[rec.CountryID.Int64] = rec.CountryName
			}

			want := DeriveSatelliteIDs(reportID)
			got := SatelliteIDs{rec.EconomicID.Int64, rec.SocialID.Int64, rec.PerceptionID.Int64}
			if got != want {
				add(IssueSatelliteMismatch, batch.Year, rec.CountryName, "satellites %v do not derive from report_id %d", got, reportID)
			}
		}
	}

	report.Countries = len(idByName)
	return report
}
