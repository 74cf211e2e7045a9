package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withObsrvr/whr-pipeline/consumer"
	"github.com/withObsrvr/whr-pipeline/internal/config"
	"github.com/withObsrvr/whr-pipeline/processor"
)

type fakeSource struct {
	years   []int
	fail    error
	skipped []string
	subs    []processor.Processor
}

func (s *fakeSource) Subscribe(p processor.Processor) { s.subs = append(s.subs, p) }

func (s *fakeSource) Run(ctx context.Context) error {
	for _, y := range s.years {
		for _, p := range s.subs {
			if err := p.Process(ctx, processor.Message{Payload: processor.YearBatch{Year: y}}); err != nil {
				return err
			}
		}
	}
	return s.fail
}

func (s *fakeSource) Skipped() []string { return s.skipped }
func (s *fakeSource) Summary() []string { return []string{fmt.Sprintf("source: %d files", len(s.years))} }

type fakeStage struct {
	name     string
	seen     []int
	closed   bool
	aborted  bool
	closeErr error
	skipped  []string
	subs     []processor.Processor
}

func (f *fakeStage) Subscribe(p processor.Processor) { f.subs = append(f.subs, p) }

func (f *fakeStage) Process(ctx context.Context, msg processor.Message) error {
	batch, err := processor.BatchFromMessage(msg)
	if err != nil {
		return err
	}
	f.seen = append(f.seen, batch.Year)
	for _, p := range f.subs {
		if err := p.Process(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStage) Close() error               { f.closed = true; return f.closeErr }
func (f *fakeStage) Abort() error               { f.aborted = true; return nil }
func (f *fakeStage) AddSkipped(names ...string) { f.skipped = append(f.skipped, names...) }
func (f *fakeStage) Summary() []string          { return []string{fmt.Sprintf("%s: %d batches", f.name, len(f.seen))} }

type harness struct {
	source *fakeSource
	stages map[string]*fakeStage
}

func newHarness() *harness {
	return &harness{source: &fakeSource{years: []int{2015, 2016}}, stages: map[string]*fakeStage{}}
}

func (h *harness) stage(typ string) *fakeStage {
	s := &fakeStage{name: typ}
	h.stages[typ] = s
	return s
}

func (h *harness) factories() Factories {
	return Factories{
		CreateSourceAdapter: func(c SourceConfig) (SourceAdapter, error) { return h.source, nil },
		CreateProcessor: func(c processor.ProcessorConfig) (processor.Processor, error) {
			return h.stage(c.Type), nil
		},
		CreateConsumer: func(c consumer.ConsumerConfig) (processor.Processor, error) {
			return h.stage(c.Type), nil
		},
		Known: config.KnownTypes{
			Sources:    []string{"TabularSourceAdapter", "ArtifactSourceAdapter"},
			Processors: []string{"IdentityAssigner", "RecordNormalizer", "IntegrityFilter"},
			Consumers:  []string{"WriteArtifacts", "EmitDML", "StdoutConsumer"},
		},
	}
}

func fullPipeline() PipelineConfig {
	return PipelineConfig{
		Source: SourceConfig{Type: "csv", Config: map[string]interface{}{"input_dir": "data"}},
		Processors: []processor.ProcessorConfig{
			{Type: "assign_ids"}, {Type: "normalize"}, {Type: "filter"},
		},
		Consumers: []consumer.ConsumerConfig{
			{Type: "artifacts", Config: map[string]interface{}{"output_dir": "out"}},
			{Type: "stdout"},
		},
	}
}

func TestRunPipeline(t *testing.T) {
	h := newHarness()
	h.source.skipped = []string{"2017.csv"}

	res, err := RunPipeline(context.Background(), "whr", fullPipeline(), h.factories())
	require.NoError(t, err)

	for _, typ := range []string{"IdentityAssigner", "RecordNormalizer", "IntegrityFilter", "WriteArtifacts", "StdoutConsumer"} {
		s := h.stages[typ]
		require.NotNil(t, s, typ)
		assert.Equal(t, []int{2015, 2016}, s.seen, typ)
		assert.True(t, s.closed, typ)
	}
	assert.Equal(t, []string{"2017.csv"}, h.stages["WriteArtifacts"].skipped)

	assert.Equal(t, []string{
		"source: 2 files",
		"IdentityAssigner: 2 batches",
		"RecordNormalizer: 2 batches",
		"IntegrityFilter: 2 batches",
		"WriteArtifacts: 2 batches",
		"StdoutConsumer: 2 batches",
	}, res.Summary)
}

func TestRunPipelineSourceFailureSkipsFlush(t *testing.T) {
	h := newHarness()
	h.source.fail = processor.ErrNoInputFiles

	res, err := RunPipeline(context.Background(), "whr", fullPipeline(), h.factories())
	require.Error(t, err)
	assert.True(t, errors.Is(err, processor.ErrNoInputFiles))
	require.NotNil(t, res)
	assert.Equal(t, []string{"source: 2 files"}, res.Summary)
	for typ, s := range h.stages {
		assert.False(t, s.closed, typ)
		assert.True(t, s.aborted, typ)
	}
}

func TestRunPipelineProcessorCloseFailureSkipsConsumers(t *testing.T) {
	h := newHarness()
	f := h.factories()
	create := f.CreateProcessor
	f.CreateProcessor = func(c processor.ProcessorConfig) (processor.Processor, error) {
		p, err := create(c)
		if c.Type == "IntegrityFilter" {
			p.(*fakeStage).closeErr = errors.New("corpus validation found 1 issues")
		}
		return p, err
	}

	_, err := RunPipeline(context.Background(), "whr", fullPipeline(), f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corpus validation")
	assert.True(t, h.stages["IdentityAssigner"].closed)
	assert.False(t, h.stages["IdentityAssigner"].aborted)
	for _, typ := range []string{"WriteArtifacts", "StdoutConsumer"} {
		assert.False(t, h.stages[typ].closed, typ)
		assert.True(t, h.stages[typ].aborted, typ)
	}
}

func TestRunPipelineConsumerCloseFailureAbortsTheRest(t *testing.T) {
	h := newHarness()
	f := h.factories()
	create := f.CreateConsumer
	f.CreateConsumer = func(c consumer.ConsumerConfig) (processor.Processor, error) {
		p, err := create(c)
		if c.Type == "WriteArtifacts" {
			p.(*fakeStage).closeErr = processor.ErrEmptyCorpus
		}
		return p, err
	}

	_, err := RunPipeline(context.Background(), "whr", fullPipeline(), f)
	require.Error(t, err)
	assert.True(t, errors.Is(err, processor.ErrEmptyCorpus))
	assert.True(t, h.stages["IntegrityFilter"].closed)
	assert.False(t, h.stages["IntegrityFilter"].aborted)
	assert.False(t, h.stages["StdoutConsumer"].closed)
	assert.True(t, h.stages["StdoutConsumer"].aborted)
}

func TestRunPipelineConsumersOnly(t *testing.T) {
	h := newHarness()
	pc := PipelineConfig{
		Source: SourceConfig{Type: "artifacts", Config: map[string]interface{}{"input_dir": "in"}},
		Consumers: []consumer.ConsumerConfig{
			{Type: "dml"}, {Type: "stdout"},
		},
	}
	_, err := RunPipeline(context.Background(), "emit", pc, h.factories())
	require.NoError(t, err)
	assert.Equal(t, []int{2015, 2016}, h.stages["EmitDML"].seen)
	assert.Equal(t, []int{2015, 2016}, h.stages["StdoutConsumer"].seen)
}

func TestRunPipelineValidation(t *testing.T) {
	h := newHarness()
	pc := fullPipeline()
	pc.Consumers = append(pc.Consumers, consumer.ConsumerConfig{Type: "stdot"})

	res, err := RunPipeline(context.Background(), "whr", pc, h.factories())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "Did you mean")
	assert.Contains(t, err.Error(), "stdout")
	assert.Empty(t, h.stages, "nothing is built on invalid config")
}

func TestRunnerRunsPipelinesInNameOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipelines.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`pipelines:
  b_emit:
    source:
      type: artifacts
      config:
        input_dir: filtered
    consumers:
      - type: dml
  a_ingest:
    source:
      type: tabular
      config:
        input_dir: data
    consumers:
      - type: artifacts
        config:
          output_dir: ingested
`), 0o644))

	h := newHarness()
	results, err := New(Options{ConfigFile: path}, h.factories()).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a_ingest", results[0].Pipeline)
	assert.Equal(t, "b_emit", results[1].Pipeline)

	results, err = New(Options{ConfigFile: path, Pipeline: "b_emit"}, h.factories()).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)

	_, err = New(Options{ConfigFile: path, Pipeline: "missing"}, h.factories()).Run(context.Background())
	assert.Error(t, err)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipelines: {}\n"), 0o644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}
