package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withObsrvr/whr-pipeline/consumer"
	"github.com/withObsrvr/whr-pipeline/internal/cli/runner"
	"github.com/withObsrvr/whr-pipeline/internal/quality"
	"github.com/withObsrvr/whr-pipeline/pkg/checkpoint"
	"github.com/withObsrvr/whr-pipeline/processor"
)

func artifactStage(in, out, previous, stage, processorType string) runner.PipelineConfig {
	return runner.PipelineConfig{
		Source: runner.SourceConfig{Type: "artifacts", Config: map[string]interface{}{
			"input_dir": in, "expect_stage": previous,
		}},
		Processors: []processor.ProcessorConfig{{Type: processorType}},
		Consumers: []consumer.ConsumerConfig{{Type: "artifacts", Config: map[string]interface{}{
			"output_dir": out, "stage": stage,
		}}},
	}
}

// TestStagedPipeline runs every stage through the factories the CLI uses,
// then loads the emitted SQL into SQLite.
func TestStagedPipeline(t *testing.T) {
	ctx := context.Background()
	data := yearFixtures(t)
	work := t.TempDir()
	dir := func(name string) string { return filepath.Join(work, name) }

	stages := []struct {
		name string
		pc   runner.PipelineConfig
	}{
		{"ingest", runner.PipelineConfig{
			Source: runner.SourceConfig{Type: "tabular", Config: map[string]interface{}{"input_dir": data}},
			Consumers: []consumer.ConsumerConfig{{Type: "artifacts", Config: map[string]interface{}{
				"output_dir": dir("ingested"), "stage": "ingest",
			}}},
		}},
		{"assign-ids", artifactStage(dir("ingested"), dir("identified"), "ingest", "assign-ids", "assign_ids")},
		{"normalize", artifactStage(dir("identified"), dir("normalized"), "assign-ids", "normalize", "normalize")},
		{"filter", artifactStage(dir("normalized"), dir("filtered"), "normalize", "filter", "filter")},
	}
	for _, s := range stages {
		_, err := runner.RunPipeline(ctx, s.name, s.pc, Factories())
		require.NoError(t, err, s.name)
	}

	ingested, err := checkpoint.LoadManifest(dir("ingested"))
	require.NoError(t, err)
	assert.Equal(t, []string{"world_happiness_2017.xlsx"}, ingested.Skipped)
	assert.Equal(t, 6, ingested.Records)

	identified, err := checkpoint.LoadManifest(dir("identified"))
	require.NoError(t, err)
	assert.NotEmpty(t, identified.RegistryFingerprint)

	filtered, err := checkpoint.LoadManifest(dir("filtered"))
	require.NoError(t, err)
	assert.Equal(t, "filter", filtered.Stage)
	assert.Equal(t, 5, filtered.Records, "Atlantis has no known region")

	res, err := runner.RunPipeline(ctx, "emit", runner.PipelineConfig{
		Source: runner.SourceConfig{Type: "artifacts", Config: map[string]interface{}{
			"input_dir": dir("filtered"), "expect_stage": "filter",
		}},
		Consumers: []consumer.ConsumerConfig{{Type: "dml", Config: map[string]interface{}{
			"output_dir": work, "mode": "dense", "seed": 42, "run_id": "staged-test",
		}}},
	}, Factories())
	require.NoError(t, err)
	assert.Equal(t, "filter", res.Source.(*ArtifactSourceAdapter).ManifestStage())

	sqlPath := filepath.Join(work, consumer.DefaultSQLFile)
	sql, err := os.ReadFile(sqlPath)
	require.NoError(t, err)
	assert.Contains(t, string(sql), "staged-test")
	assert.NotContains(t, string(sql), "Atlantis")

	report, err := quality.VerifyFile(ctx, sqlPath, quality.Options{EnforceForeignKeys: true})
	require.NoError(t, err)
	assert.True(t, report.OK(), report.Problems())
	assert.Equal(t, []quality.YearCount{{Year: 2015, Reports: 3}, {Year: 2016, Reports: 3}}, report.Years)
	assert.Equal(t, 4, report.Fabricated, "Iceland 2015 is fabricated in four tables")
	assert.Equal(t, int64(3), report.Counts[1].Rows)
}

func TestStagedPipelineEmptyCorpusWritesNothing(t *testing.T) {
	in := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(in, "world_happiness_2015.json"), []byte("[]\n"), 0o644))
	out := t.TempDir()

	_, err := runner.RunPipeline(context.Background(), "emit", runner.PipelineConfig{
		Source:    runner.SourceConfig{Type: "artifacts", Config: map[string]interface{}{"input_dir": in}},
		Consumers: []consumer.ConsumerConfig{{Type: "dml", Config: map[string]interface{}{"output_dir": out}}},
	}, Factories())
	require.Error(t, err)
	assert.ErrorIs(t, err, processor.ErrEmptyCorpus)
	assert.NoFileExists(t, filepath.Join(out, consumer.DefaultSQLFile))
}

func TestFactoriesRejectUnknownTypes(t *testing.T) {
	_, err := CreateSourceAdapterFunc(SourceConfig{Type: "RPCSourceAdapter"})
	assert.Error(t, err)
	_, err = CreateProcessorFunc(processor.ProcessorConfig{Type: "LedgerReader"})
	assert.Error(t, err)
	_, err = CreateConsumerFunc(consumer.ConsumerConfig{Type: "SaveToRedis"})
	assert.Error(t, err)

	for _, typ := range KnownTypes.Processors {
		_, err := CreateProcessorFunc(processor.ProcessorConfig{Type: typ, Config: map[string]interface{}{
			"output_dir": t.TempDir(),
		}})
		assert.NoError(t, err, typ)
	}
}

func TestRunConfigWithArtifactTaps(t *testing.T) {
	data := yearFixtures(t)
	work := t.TempDir()
	path := filepath.Join(work, "pipelines.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`pipelines:
  whr:
    source:
      type: tabular
      config:
        input_dir: `+data+`
    processors:
      - type: assign_ids
      - type: artifacts
        config:
          output_dir: `+filepath.Join(work, "identified")+`
          stage: assign-ids
      - type: normalize
      - type: filter
    consumers:
      - type: artifacts
        config:
          output_dir: `+filepath.Join(work, "filtered")+`
          stage: filter
      - type: dml
        config:
          output_dir: `+work+`
          mode: strict
`), 0o644))

	results, err := runner.New(runner.Options{ConfigFile: path}, Factories()).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)

	tap, err := checkpoint.LoadManifest(filepath.Join(work, "identified"))
	require.NoError(t, err)
	assert.Equal(t, "assign-ids", tap.Stage)
	assert.Equal(t, 6, tap.Records)
	assert.Equal(t, []string{"world_happiness_2017.xlsx"}, tap.Skipped)

	report, err := quality.VerifyFile(context.Background(), filepath.Join(work, consumer.DefaultSQLFile), quality.Options{})
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 0, report.Fabricated)
	assert.Equal(t, []quality.YearCount{{Year: 2015, Reports: 2}, {Year: 2016, Reports: 3}}, report.Years)
}
