package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withObsrvr/whr-pipeline/pkg/checkpoint"
	"github.com/withObsrvr/whr-pipeline/processor"
)

const (
	csv2015 = "Ranking,Country,Regional indicator,Happiness score,GDP per capita,Social support,Healthy life expectancy,Freedom to make life choices,Generosity,Perceptions of corruption\n" +
		"1,Denmark,Western Europe,7.527,1.325,1.360,0.874,0.649,0.341,0.484\n" +
		"2,Finland,Western Europe,7.406,1.290,1.318,0.889,0.642,0.234,0.414\n" +
		"3,Atlantis,Lost Continents,6.100,1.000,1.000,0.700,0.500,0.200,0.300\n"
	csv2016 = "Ranking,Country,Regional indicator,Happiness score,GDP per capita,Social support,Healthy life expectancy,Freedom to make life choices,Generosity,Perceptions of corruption\n" +
		"1,Denmark,Western Europe,7.526,1.442,1.163,0.795,0.579,0.361,0.445\n" +
		"3,Iceland,Western Europe,7.501,1.427,1.183,0.867,0.566,0.476,0.150\n" +
		"5,Finland,Western Europe,7.413,1.406,1.134,0.811,0.571,0.255,0.410\n"
)

// yearFixtures writes two readable year files and one broken workbook.
func yearFixtures(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "world_happiness_2016.csv"), []byte(csv2016), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "world_happiness_2015.csv"), []byte(csv2015), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "world_happiness_2017.xlsx"), []byte("not a workbook"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	return dir
}

type capture struct {
	batches []processor.YearBatch
	files   []*processor.SourceFileMetadata
}

func (c *capture) Subscribe(processor.Processor) {}

func (c *capture) Process(ctx context.Context, msg processor.Message) error {
	batch, err := processor.BatchFromMessage(msg)
	if err != nil {
		return err
	}
	c.batches = append(c.batches, batch)
	meta, _ := msg.GetSourceFile()
	c.files = append(c.files, meta)
	return nil
}

func (c *capture) years() []int {
	out := make([]int, len(c.batches))
	for i, b := range c.batches {
		out[i] = b.Year
	}
	return out
}

func TestTabularSourceAdapterEmitsYearsInOrder(t *testing.T) {
	src, err := NewTabularSourceAdapter(map[string]interface{}{"input_dir": yearFixtures(t)})
	require.NoError(t, err)
	c := &capture{}
	src.Subscribe(c)

	require.NoError(t, src.Run(context.Background()))

	assert.Equal(t, []int{2015, 2016}, c.years())
	assert.Len(t, c.batches[0].Records, 3)
	assert.Equal(t, "Denmark", c.batches[0].Records[0].CountryName)
	require.NotNil(t, c.files[1])
	assert.Equal(t, "tabular", c.files[1].SourceType)
	assert.Equal(t, "world_happiness_2016.csv", c.files[1].FileName)
	assert.Positive(t, c.files[1].FileSize)

	tab := src.(*TabularSourceAdapter)
	assert.Equal(t, []string{"world_happiness_2017.xlsx"}, tab.Skipped())
	assert.Equal(t, []string{"ingest: 2 files read, 1 skipped (world_happiness_2017.xlsx)"}, tab.Summary())
}

func TestTabularSourceAdapterNoFiles(t *testing.T) {
	src, err := NewTabularSourceAdapter(map[string]interface{}{"input_dir": t.TempDir()})
	require.NoError(t, err)
	c := &capture{}
	src.Subscribe(c)

	err = src.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, processor.ErrNoInputFiles))
	assert.Empty(t, c.batches)
}

func TestTabularSourceAdapterStopsOnCancel(t *testing.T) {
	src, err := NewTabularSourceAdapter(map[string]interface{}{"input_dir": yearFixtures(t)})
	require.NoError(t, err)
	c := &capture{}
	src.Subscribe(c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, src.Run(ctx), context.Canceled)
	assert.Empty(t, c.batches)
}

func TestSourceAdaptersRequireInputDir(t *testing.T) {
	_, err := NewTabularSourceAdapter(map[string]interface{}{})
	assert.Error(t, err)
	_, err = NewArtifactSourceAdapter(map[string]interface{}{"input_dir": ""})
	assert.Error(t, err)
}

func writeArtifact(t *testing.T, dir string, year int, records []processor.Record) {
	t.Helper()
	data, err := processor.EncodeArtifact(records)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, processor.ArtifactName(processor.DefaultArtifactPrefix, year)), data, 0o644))
}

func TestArtifactSourceAdapter(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, 2020, []processor.Record{{CountryName: "Finland"}})
	writeArtifact(t, dir, 2019, []processor.Record{{CountryName: "Finland"}, {CountryName: "Nepal"}})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "world_happiness_2021.json"), []byte("{broken"), 0o644))
	require.NoError(t, checkpoint.WriteManifest(dir, checkpoint.NewManifest("normalize", nil)))

	src, err := NewArtifactSourceAdapter(map[string]interface{}{"input_dir": dir, "expect_stage": "filter"})
	require.NoError(t, err)
	c := &capture{}
	src.Subscribe(c)
	require.NoError(t, src.Run(context.Background()))

	assert.Equal(t, []int{2019, 2020}, c.years())
	assert.Len(t, c.batches[0].Records, 2)
	assert.Equal(t, "artifact", c.files[0].SourceType)

	a := src.(*ArtifactSourceAdapter)
	assert.Equal(t, "normalize", a.ManifestStage())
	assert.Equal(t, []string{"world_happiness_2021.json"}, a.Skipped())
}

func TestArtifactSourceAdapterWithoutManifest(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, 2019, []processor.Record{{CountryName: "Finland"}})

	src, err := NewArtifactSourceAdapter(map[string]interface{}{"input_dir": dir})
	require.NoError(t, err)
	src.Subscribe(&capture{})
	require.NoError(t, src.Run(context.Background()))
	assert.Empty(t, src.(*ArtifactSourceAdapter).ManifestStage())
}
