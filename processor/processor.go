package processor

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Processor defines the interface for processing messages.
type Processor interface {
	Process(context.Context, Message) error
	Subscribe(Processor)
}

type ProcessorConfig struct {
	Type   string                 `yaml:"type"`
	Config map[string]interface{} `yaml:"config"`
}

// Message encapsulates the payload to be processed with optional metadata.
type Message struct {
	Payload  interface{}            `json:"payload"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// SourceFileMetadata describes the year file a batch was read from
type SourceFileMetadata struct {
	SourceType  string    `json:"source_type"` // "tabular", "artifact"
	FilePath    string    `json:"file_path"`
	FileName    string    `json:"file_name"`
	Year        int       `json:"year"`
	ProcessedAt time.Time `json:"processed_at"`
	FileSize    int64     `json:"file_size,omitempty"`
}

const sourceFileKey = "source_file"

// GetSourceFile extracts source file metadata from the message
func (m *Message) GetSourceFile() (*SourceFileMetadata, bool) {
	if m.Metadata == nil {
		return nil, false
	}
	meta, ok := m.Metadata[sourceFileKey].(*SourceFileMetadata)
	return meta, ok
}

// SetSourceFile attaches source file metadata to the message
func (m *Message) SetSourceFile(meta *SourceFileMetadata) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]interface{})
	}
	m.Metadata[sourceFileKey] = meta
}

// YearBatch is the unit flowing between stages: every record of one year file.
type YearBatch struct {
	Year    int      `json:"year"`
	Source  string   `json:"source"`
	Records []Record `json:"records"`
}

// Clone returns a deep copy so stages never share record slices.
func (b YearBatch) Clone() YearBatch {
	out := YearBatch{Year: b.Year, Source: b.Source}
	out.Records = make([]Record, len(b.Records))
	copy(out.Records, b.Records)
	return out
}

// BatchFromMessage extracts the YearBatch payload of a message.
func BatchFromMessage(msg Message) (YearBatch, error) {
	switch payload := msg.Payload.(type) {
	case YearBatch:
		return payload, nil
	case *YearBatch:
		if payload == nil {
			return YearBatch{}, errors.New("nil year batch")
		}
		return *payload, nil
	default:
		return YearBatch{}, errors.Errorf("expected YearBatch payload, got %T", msg.Payload)
	}
}

// forward sends a transformed batch to every subscriber, keeping the
// incoming message metadata.
func forward(ctx context.Context, subscribers []Processor, batch YearBatch, metadata map[string]interface{}) error {
	for _, p := range subscribers {
		if err := p.Process(ctx, Message{Payload: batch, Metadata: metadata}); err != nil {
			return errors.Wrapf(err, "error in downstream processor %T", p)
		}
	}
	return nil
}
