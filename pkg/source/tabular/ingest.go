package tabular

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/guregu/null"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/withObsrvr/whr-pipeline/processor"
	"github.com/withObsrvr/whr-pipeline/utils"
)

// DefaultPattern matches the year files of an input directory.
const DefaultPattern = "world_happiness_*"

const missingRankingSortKey = 999

// columnFields maps lower-cased source headers to canonical fields.
var columnFields = map[string]string{
	"ranking":                      processor.FieldRanking,
	"country":                      processor.FieldCountryName,
	"regional indicator":           processor.FieldRegionName,
	"happiness score":              processor.FieldHappinessScore,
	"gdp per capita":               processor.FieldGDPPerCapita,
	"social support":               processor.FieldSocialSupport,
	"healthy life expectancy":      processor.FieldHealthyLife,
	"freedom to make life choices": processor.FieldFreedom,
	"generosity":                   processor.FieldGenerosity,
	"perceptions of corruption":    processor.FieldCorruption,
}

// ColumnIndex maps canonical fields to their column in header. Fields
// without a column are absent from the map.
func ColumnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(columnFields))
	for i, h := range header {
		field, ok := columnFields[strings.ToLower(strings.TrimSpace(h))]
		if !ok {
			continue
		}
		if _, dup := idx[field]; !dup {
			idx[field] = i
		}
	}
	return idx
}

// BuildRecords converts table rows into records, computes the ingest
// residual and orders the result by ranking. Rows without a country name
// are dropped.
func BuildRecords(t *Table) []processor.Record {
	cols := ColumnIndex(t.Header)
	cell := func(row []string, field string) (string, bool) {
		i, ok := cols[field]
		if !ok || i >= len(row) {
			return "", false
		}
		return row[i], true
	}
	number := func(row []string, field string) null.Float {
		v, ok := cell(row, field)
		if !ok {
			return null.Float{}
		}
		return null.FloatFrom(utils.Round(utils.ParseNumber(v), 5))
	}

	records := make([]processor.Record, 0, len(t.Rows))
	for _, row := range t.Rows {
		var rec processor.Record
		if v, ok := cell(row, processor.FieldCountryName); ok {
			rec.CountryName = strings.TrimSpace(v)
		}
		if rec.CountryName == "" {
			continue
		}
		if v, ok := cell(row, processor.FieldRanking); ok {
			rec.Ranking = null.IntFrom(int64(utils.ParseNumber(v)))
		}
		if v, ok := cell(row, processor.FieldRegionName); ok {
			rec.RegionName = null.StringFrom(strings.TrimSpace(v))
		}
		rec.HappinessScore = number(row, processor.FieldHappinessScore)
		rec.GDPPerCapita = number(row, processor.FieldGDPPerCapita)
		rec.SocialSupport = number(row, processor.FieldSocialSupport)
		rec.HealthyLife = number(row, processor.FieldHealthyLife)
		rec.Freedom = number(row, processor.FieldFreedom)
		rec.Generosity = number(row, processor.FieldGenerosity)
		rec.Corruption = number(row, processor.FieldCorruption)
		rec.Residual = null.FloatFrom(processor.IngestResidual(rec.HappinessScore.ValueOrZero(), rec.Factors()))

		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return rankingKey(records[i]) < rankingKey(records[j])
	})
	return records
}

func rankingKey(r processor.Record) int64 {
	if !r.Ranking.Valid {
		return missingRankingSortKey
	}
	return r.Ranking.Int64
}

// YearFile is one discovered input file.
type YearFile struct {
	Path string
	Year int
}

// DiscoverYearFiles lists the supported files of dir matching pattern, in
// ascending year order. When two files carry the same year the first by
// name wins. It returns processor.ErrNoInputFiles when nothing matches.
func DiscoverYearFiles(dir, pattern string) ([]YearFile, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	return DiscoverFiles(dir, pattern, IsSupported)
}

// DiscoverFiles is DiscoverYearFiles with a caller-supplied file filter.
func DiscoverFiles(dir, pattern string, accept func(path string) bool) ([]YearFile, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, errors.Wrapf(processor.ErrNoInputFiles, "input dir %s", dir)
	}

	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, errors.Wrapf(err, "bad file pattern %q", pattern)
	}
	sort.Strings(matches)

	seen := make(map[int]string)
	var files []YearFile
	for _, path := range matches {
		if !accept(path) {
			continue
		}
		year, ok := processor.YearFromFilename(path)
		if !ok {
			continue
		}
		if prev, dup := seen[year]; dup {
			log.WithFields(log.Fields{"file": path, "kept": prev, "year": year}).Warn("duplicate year file skipped")
			continue
		}
		seen[year] = path
		files = append(files, YearFile{Path: path, Year: year})
	}

	if len(files) == 0 {
		return nil, errors.Wrapf(processor.ErrNoInputFiles, "%s/%s", dir, pattern)
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].Year < files[j].Year })
	return files, nil
}

// IngestFile reads one year file into a batch.
func IngestFile(f YearFile) (processor.YearBatch, error) {
	t, err := ReadFile(f.Path)
	if err != nil {
		return processor.YearBatch{}, err
	}
	return processor.YearBatch{
		Year:    f.Year,
		Source:  filepath.Base(f.Path),
		Records: BuildRecords(t),
	}, nil
}
