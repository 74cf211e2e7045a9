package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/withObsrvr/whr-pipeline/pkg/checkpoint"
	"github.com/withObsrvr/whr-pipeline/pkg/source/tabular"
	"github.com/withObsrvr/whr-pipeline/processor"
)

// ArtifactSourceAdapter replays the per-year JSON artifacts a previous
// stage wrote, in ascending year order.
type ArtifactSourceAdapter struct {
	inputDir      string
	prefix        string
	expectStage   string
	processors    []processor.Processor
	skipped       []string
	emitted       int
	manifestStage string
}

func NewArtifactSourceAdapter(config map[string]interface{}) (SourceAdapter, error) {
	inputDir, ok := config["input_dir"].(string)
	if !ok || inputDir == "" {
		return nil, errors.New("input_dir must be specified")
	}
	prefix, _ := config["file_prefix"].(string)
	if prefix == "" {
		prefix = processor.DefaultArtifactPrefix
	}
	expect, _ := config["expect_stage"].(string)
	return &ArtifactSourceAdapter{inputDir: inputDir, prefix: prefix, expectStage: expect}, nil
}

func (a *ArtifactSourceAdapter) Subscribe(p processor.Processor) {
	a.processors = append(a.processors, p)
}

func (a *ArtifactSourceAdapter) Run(ctx context.Context) error {
	a.checkManifest()

	files, err := tabular.DiscoverFiles(a.inputDir, a.prefix+"_*.json", func(path string) bool {
		return strings.EqualFold(filepath.Ext(path), ".json")
	})
	if err != nil {
		return err
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := readArtifact(f)
		if err != nil {
			log.WithFields(log.Fields{"stage": "artifacts", "file": f.Path}).WithError(err).Warn("skipping unreadable artifact")
			a.skipped = append(a.skipped, filepath.Base(f.Path))
			continue
		}
		if err := emit(ctx, a.processors, batch, "artifact", f.Path); err != nil {
			return err
		}
		a.emitted++
	}
	return nil
}

func readArtifact(f tabular.YearFile) (processor.YearBatch, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return processor.YearBatch{}, errors.Wrap(err, "failed to read artifact")
	}
	records, err := processor.DecodeArtifact(data)
	if err != nil {
		return processor.YearBatch{}, err
	}
	return processor.YearBatch{Year: f.Year, Source: filepath.Base(f.Path), Records: records}, nil
}

// checkManifest warns when the artifacts were not produced by the expected
// stage. A missing manifest is only noted.
func (a *ArtifactSourceAdapter) checkManifest() {
	m, err := checkpoint.LoadManifest(a.inputDir)
	if err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			log.WithField("dir", a.inputDir).Debug("no manifest in artifact dir")
		} else {
			log.WithField("dir", a.inputDir).WithError(err).Warn("unreadable manifest")
		}
		return
	}
	a.manifestStage = m.Stage
	if a.expectStage != "" && m.Stage != a.expectStage {
		log.WithFields(log.Fields{
			"dir":      a.inputDir,
			"stage":    m.Stage,
			"expected": a.expectStage,
			"run_id":   m.RunID,
		}).Warn("artifacts come from an incomplete pipeline")
	}
}

// ManifestStage is the stage recorded in the input manifest, if any.
func (a *ArtifactSourceAdapter) ManifestStage() string {
	return a.manifestStage
}

func (a *ArtifactSourceAdapter) Skipped() []string {
	return a.skipped
}

func (a *ArtifactSourceAdapter) Summary() []string {
	return []string{summaryLine("artifacts", a.emitted, a.skipped)}
}

func summaryLine(name string, emitted int, skipped []string) string {
	if len(skipped) == 0 {
		return fmt.Sprintf("%s: %d files read", name, emitted)
	}
	return fmt.Sprintf("%s: %d files read, %d skipped (%s)", name, emitted, len(skipped), strings.Join(skipped, ", "))
}
