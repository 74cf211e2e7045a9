package consumer

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/withObsrvr/whr-pipeline/processor"
)

// StdoutConsumer writes every record it receives as one JSON line.
type StdoutConsumer struct {
	out io.Writer
}

// NewStdoutConsumer creates a new StdoutConsumer instance.
func NewStdoutConsumer() *StdoutConsumer {
	return &StdoutConsumer{out: os.Stdout}
}

type stdoutLine struct {
	Year   int              `json:"year"`
	Source string           `json:"source"`
	Record processor.Record `json:"record"`
}

// Process implements the processor.Processor interface.
func (s *StdoutConsumer) Process(ctx context.Context, msg processor.Message) error {
	batch, err := processor.BatchFromMessage(msg)
	if err != nil {
		return errors.Wrap(err, "StdoutConsumer")
	}

	enc := json.NewEncoder(s.out)
	for _, rec := range batch.Records {
		if err := enc.Encode(stdoutLine{Year: batch.Year, Source: batch.Source, Record: rec}); err != nil {
			return errors.Wrap(err, "StdoutConsumer: error writing record")
		}
	}
	return nil
}

// Subscribe is a no-op: StdoutConsumer is always the last stage.
func (s *StdoutConsumer) Subscribe(p processor.Processor) {}
