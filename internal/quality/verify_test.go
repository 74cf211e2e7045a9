package quality

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/guregu/null"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withObsrvr/whr-pipeline/consumer/dml"
	"github.com/withObsrvr/whr-pipeline/processor"
)

func TestSplitStatements(t *testing.T) {
	script := `-- Banner: it's a comment; not a statement
INSERT INTO region (region_id, region_name) VALUES
(1, 'South Asia'),
(2, 'Semi;colon -- not a comment'); -- fabricated
-- trailer
INSERT INTO country (country_id, country_name, region_id) VALUES
(1, 'Cote d''Ivoire', 2);
;
`
	stmts := SplitStatements(script)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "'Semi;colon -- not a comment'")
	assert.NotContains(t, stmts[0], "Banner")
	assert.Contains(t, stmts[1], "'Cote d''Ivoire'")
	assert.Empty(t, SplitStatements("-- only comments\n\n"))
}

func TestParseEngine(t *testing.T) {
	e, err := ParseEngine("")
	require.NoError(t, err)
	assert.Equal(t, EngineSQLite, e)
	e, err = ParseEngine("DuckDB")
	require.NoError(t, err)
	assert.Equal(t, EngineDuckDB, e)
	_, err = ParseEngine("postgres")
	assert.Error(t, err)
}

func rec(country, region string, ranking int64, score float64) processor.Record {
	return processor.Record{
		Ranking:        null.IntFrom(ranking),
		CountryName:    country,
		RegionName:     null.StringFrom(region),
		HappinessScore: null.FloatFrom(score),
		GDPPerCapita:   null.FloatFrom(1.1),
		SocialSupport:  null.FloatFrom(1.0),
		HealthyLife:    null.FloatFrom(0.6),
		Freedom:        null.FloatFrom(0.4),
		Generosity:     null.FloatFrom(0.2),
		Corruption:     null.FloatFrom(0.1),
		Residual:       null.FloatFrom(1.5),
	}
}

func renderedDML(t *testing.T, mode dml.Mode) string {
	t.Helper()
	reg := processor.NewRegistry()
	batches := []processor.YearBatch{
		processor.AssignIDs(reg, processor.YearBatch{Year: 2019, Records: []processor.Record{
			rec("Finland", "Western Europe", 1, 7.769),
			rec("Cote d'Ivoire", "Sub-Saharan Africa", 99, 4.944),
		}}),
		processor.AssignIDs(reg, processor.YearBatch{Year: 2020, Records: []processor.Record{
			rec("Finland", "Western Europe", 1, 7.809),
			rec("Nepal", "South Asia", 92, 5.137),
		}}),
	}
	d, err := dml.Build(batches, dml.Options{Mode: mode, Seed: dml.DefaultSeed})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, dml.Render(&buf, d, dml.RenderOptions{RunID: "test", GeneratedAt: time.Now()}))
	return buf.String()
}

func TestVerifyRenderedDMLDense(t *testing.T) {
	r, err := Verify(context.Background(), renderedDML(t, dml.ModeDense), Options{EnforceForeignKeys: true})
	require.NoError(t, err)

	assert.True(t, r.OK(), r.Problems())
	assert.Equal(t, 6, r.Statements)
	assert.Equal(t, 2*4, r.Fabricated, "two fabricated reports, each marked in four tables")
	assert.Equal(t, []TableCount{
		{"region", 10}, {"country", 3}, {"happiness_report", 6},
		{"economic_indicator", 6}, {"social_indicator", 6}, {"perception_indicator", 6},
	}, r.Counts)
	assert.Equal(t, []YearCount{{2019, 3}, {2020, 3}}, r.Years)
	for _, c := range r.Completeness {
		assert.Equal(t, 100.0, c.Percent, c.Table)
	}
	assert.Equal(t, int64(0), r.OrphanTotal())
	assert.True(t, r.ScoreMax.Valid)
	assert.InDelta(t, 7.81, r.ScoreMax.Float64, 1e-9)
	assert.Equal(t, int64(1), r.RankingMin.Int64)
	assert.Empty(t, r.Problems())
}

func TestVerifyRenderedDMLStrict(t *testing.T) {
	r, err := Verify(context.Background(), renderedDML(t, dml.ModeStrict), Options{})
	require.NoError(t, err)
	assert.True(t, r.OK())
	assert.Equal(t, int64(4), r.Counts[2].Rows)
	assert.Equal(t, 0, r.Fabricated)
	assert.Equal(t, []YearCount{{2019, 2}, {2020, 2}}, r.Years)
}

const brokenDML = `
INSERT INTO region (region_id, region_name) VALUES (1, 'South Asia');
INSERT INTO country (country_id, country_name, region_id) VALUES
(1, 'Nepal', 1),
(2, 'Nepal', 1),
(3, 'Atlantis', 42);
INSERT INTO happiness_report (report_id, country_id, year, ranking, happiness_score, dystopia_residual) VALUES
(10001, 1, 2020, 92, 5.14, 1.500),
(10002, 1, 2020, 92, 5.14, 1.500),
(10003, 9, 2020, 0, 11.00, NULL);
INSERT INTO economic_indicator (economic_id, report_id, gdp_per_capita) VALUES
(10001, 10001, 0.45),
(10007, 10007, 0.50);
`

func TestVerifyFindsProblems(t *testing.T) {
	r, err := Verify(context.Background(), brokenDML, Options{})
	require.NoError(t, err)

	assert.False(t, r.OK())
	assert.Equal(t, int64(3), r.OrphanTotal(), "country 3, report 10003, economic 10007")
	assert.Equal(t, int64(1), r.DuplicatePairs)
	assert.Equal(t, int64(1), r.DuplicateNames)
	assert.Equal(t, int64(1), r.OutOfRange)

	var residualNulls int64
	for _, n := range r.Nulls {
		if n.Table == "happiness_report" && n.Column == "dystopia_residual" {
			residualNulls = n.Nulls
		}
	}
	assert.Equal(t, int64(1), residualNulls)
	assert.InDelta(t, 100.0/3, r.Completeness[0].Percent, 1e-9)
	assert.Len(t, r.Problems(), 7)
}

func TestVerifyEnforcedForeignKeysRejectsOrphans(t *testing.T) {
	_, err := Verify(context.Background(), brokenDML, Options{EnforceForeignKeys: true})
	assert.Error(t, err)
}

func TestVerifyEmptyScript(t *testing.T) {
	_, err := Verify(context.Background(), "-- nothing here\n", Options{})
	assert.Error(t, err)
}

func TestVerifyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dml.sql")
	require.NoError(t, os.WriteFile(path, []byte(renderedDML(t, dml.ModeStrict)), 0o644))

	r, err := VerifyFile(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.True(t, r.OK())
	assert.NotEmpty(t, r.Lines())

	_, err = VerifyFile(context.Background(), filepath.Join(t.TempDir(), "missing.sql"), Options{})
	assert.Error(t, err)
}

func TestVerifyDuckDB(t *testing.T) {
	if testing.Short() {
		t.Skip("duckdb engine skipped in short mode")
	}
	r, err := Verify(context.Background(), renderedDML(t, dml.ModeDense), Options{Engine: EngineDuckDB})
	require.NoError(t, err)
	assert.True(t, r.OK(), r.Problems())
	assert.Equal(t, int64(6), r.Counts[2].Rows)
	assert.Equal(t, []YearCount{{2019, 3}, {2020, 3}}, r.Years)
}
