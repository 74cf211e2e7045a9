package consumer

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/withObsrvr/whr-pipeline/consumer/dml"
	"github.com/withObsrvr/whr-pipeline/processor"
)

// DefaultSQLFile is the object name of the emitted DML.
const DefaultSQLFile = "DML_whr_v2_generated.sql"

// EmitDMLConfig defines configuration for the DML emitter
type EmitDMLConfig struct {
	Storage StorageConfig
	SQLFile string
	Options dml.Options
	RunID   string
}

// EmitDML collects the filtered corpus and, on Close, builds the six-table
// dataset and writes it as one SQL object.
type EmitDML struct {
	config        EmitDMLConfig
	storageClient StorageClient
	ctx           context.Context

	batches  []processor.YearBatch
	dataset  *dml.Dataset
	bytes    int
	wroteSQL bool
	closed   bool
}

func NewEmitDML(config map[string]interface{}) (*EmitDML, error) {
	cfg, err := parseEmitDMLConfig(config)
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	client, err := createStorageClient(ctx, cfg.Storage)
	if err != nil {
		return nil, errors.Wrap(err, "EmitDML: failed to create storage client")
	}
	return NewEmitDMLWithClient(ctx, cfg, client), nil
}

// NewEmitDMLWithClient builds the emitter around an existing storage client.
func NewEmitDMLWithClient(ctx context.Context, cfg EmitDMLConfig, client StorageClient) *EmitDML {
	log.WithFields(log.Fields{
		"consumer": "dml",
		"mode":     cfg.Options.Mode,
		"seed":     cfg.Options.Seed,
		"sql_file": cfg.SQLFile,
	}).Info("EmitDML initialized")
	return &EmitDML{config: cfg, storageClient: client, ctx: ctx}
}

func parseEmitDMLConfig(config map[string]interface{}) (EmitDMLConfig, error) {
	storage, err := storageConfigFrom(config, getString(config, "output_dir", "."), "application/sql")
	if err != nil {
		return EmitDMLConfig{}, errors.Wrap(err, "EmitDML")
	}
	mode, err := dml.ParseMode(getString(config, "mode", ""))
	if err != nil {
		return EmitDMLConfig{}, errors.Wrap(err, "EmitDML")
	}
	years, err := parseYears(config)
	if err != nil {
		return EmitDMLConfig{}, errors.Wrap(err, "EmitDML")
	}
	return EmitDMLConfig{
		Storage: storage,
		SQLFile: getString(config, "sql_file", DefaultSQLFile),
		RunID:   getString(config, "run_id", ""),
		Options: dml.Options{
			Mode:  mode,
			Seed:  int64(getInt(config, "seed", int(dml.DefaultSeed))),
			Years: years,
		},
	}, nil
}

// parseYears accepts a list of years or a "from-to" range string.
func parseYears(config map[string]interface{}) ([]int, error) {
	switch v := config["years"].(type) {
	case nil:
		return nil, nil
	case string:
		return ParseYearRange(v)
	case []int:
		return v, nil
	case []interface{}:
		out := make([]int, 0, len(v))
		for _, item := range v {
			switch y := item.(type) {
			case int:
				out = append(out, y)
			case float64:
				out = append(out, int(y))
			case int64:
				out = append(out, int(y))
			default:
				return nil, errors.Errorf("invalid year %v", item)
			}
		}
		return out, nil
	default:
		return nil, errors.Errorf("years must be a list or a range, got %T", v)
	}
}

// ParseYearRange parses "2015-2024" or a single "2020". Empty means none.
func ParseYearRange(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	from, to := s, s
	if i := strings.Index(s, "-"); i > 0 {
		from, to = s[:i], s[i+1:]
	}
	lo, err := strconv.Atoi(strings.TrimSpace(from))
	if err != nil {
		return nil, errors.Errorf("invalid year range %q", s)
	}
	hi, err := strconv.Atoi(strings.TrimSpace(to))
	if err != nil || hi < lo {
		return nil, errors.Errorf("invalid year range %q", s)
	}
	return dml.YearRange(lo, hi), nil
}

// Subscribe is a no-op: EmitDML is terminal.
func (e *EmitDML) Subscribe(p processor.Processor) {}

func (e *EmitDML) Process(ctx context.Context, msg processor.Message) error {
	batch, err := processor.BatchFromMessage(msg)
	if err != nil {
		return errors.Wrap(err, "EmitDML")
	}
	e.batches = append(e.batches, batch.Clone())
	return nil
}

// Close builds and writes the DML. An empty corpus returns
// processor.ErrEmptyCorpus and writes nothing.
func (e *EmitDML) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	defer e.storageClient.Close()

	d, err := dml.Build(e.batches, e.config.Options)
	if err != nil {
		return errors.Wrap(err, "EmitDML")
	}
	if problems := d.CheckReferences(); len(problems) > 0 {
		for _, p := range problems {
			log.WithField("consumer", "dml").Error(p)
		}
		return errors.Errorf("EmitDML: dataset has %d referential problems", len(problems))
	}

	var buf bytes.Buffer
	if err := dml.Render(&buf, d, dml.RenderOptions{RunID: e.config.RunID, GeneratedAt: time.Now()}); err != nil {
		return errors.Wrap(err, "EmitDML")
	}
	key := e.config.Storage.objectKey(e.config.SQLFile)
	if err := e.storageClient.Write(e.ctx, key, buf.Bytes()); err != nil {
		return errors.Wrapf(err, "EmitDML: failed to write %s", key)
	}
	e.dataset = d
	e.bytes = buf.Len()
	e.wroteSQL = true

	fields := log.Fields{"consumer": "dml", "file": key, "bytes": e.bytes, "fabricated": d.Fabricated}
	for _, c := range d.Counts() {
		fields[c.Table] = c.Rows
	}
	log.WithFields(fields).Info("wrote DML")
	return nil
}

// Abort drops the collected corpus and releases storage without
// building or writing anything.
func (e *EmitDML) Abort() error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.batches = nil
	return e.storageClient.Close()
}

// Dataset returns the emitted dataset once Close succeeded.
func (e *EmitDML) Dataset() *dml.Dataset {
	return e.dataset
}

func (e *EmitDML) Summary() []string {
	if !e.wroteSQL {
		return []string{fmt.Sprintf("emit: %d batches collected, nothing written", len(e.batches))}
	}
	d := e.dataset
	lines := []string{fmt.Sprintf("emit: %s mode, seed %d, %d bytes to %s", d.Mode, d.Seed, e.bytes, e.config.SQLFile)}
	for _, c := range d.Counts() {
		lines = append(lines, fmt.Sprintf("emit: %-22s %d", c.Table, c.Rows))
	}
	lines = append(lines,
		fmt.Sprintf("emit: %d fabricated rows, %d filled cells, %d skipped records", d.Fabricated, d.FilledCells, d.Skipped))
	return lines
}
