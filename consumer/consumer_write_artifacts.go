package consumer

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/withObsrvr/whr-pipeline/pkg/checkpoint"
	"github.com/withObsrvr/whr-pipeline/processor"
)

// WriteArtifacts persists every batch as <prefix>_<year>.json and forwards
// it unchanged. On Close it writes the run manifest next to the artifacts.
type WriteArtifacts struct {
	stage         string
	prefix        string
	storage       StorageConfig
	storageClient StorageClient
	manifest      *checkpoint.Manifest
	processors    []processor.Processor
	closed        bool
}

func NewWriteArtifacts(config map[string]interface{}) (*WriteArtifacts, error) {
	// output_dir is accepted as an alias of local_path
	storage, err := storageConfigFrom(config, getString(config, "output_dir", ""), "application/json")
	if err != nil {
		return nil, errors.Wrap(err, "WriteArtifacts")
	}
	client, err := createStorageClient(context.Background(), storage)
	if err != nil {
		return nil, errors.Wrap(err, "WriteArtifacts: failed to create storage client")
	}
	return NewWriteArtifactsWithClient(config, storage, client), nil
}

// NewWriteArtifactsWithClient builds the tap around an existing storage client.
func NewWriteArtifactsWithClient(config map[string]interface{}, storage StorageConfig, client StorageClient) *WriteArtifacts {
	stage := getString(config, "stage", "artifacts")
	return &WriteArtifacts{
		stage:         stage,
		prefix:        getString(config, "file_prefix", processor.DefaultArtifactPrefix),
		storage:       storage,
		storageClient: client,
		manifest:      checkpoint.NewManifest(stage, config),
	}
}

func (w *WriteArtifacts) Subscribe(p processor.Processor) {
	w.processors = append(w.processors, p)
}

func (w *WriteArtifacts) Process(ctx context.Context, msg processor.Message) error {
	batch, err := processor.BatchFromMessage(msg)
	if err != nil {
		return errors.Wrap(err, "WriteArtifacts")
	}

	data, err := processor.EncodeArtifact(batch.Records)
	if err != nil {
		return errors.Wrapf(err, "WriteArtifacts: %s", batch.Source)
	}
	name := processor.ArtifactName(w.prefix, batch.Year)
	if err := w.storageClient.Write(ctx, w.storage.objectKey(name), data); err != nil {
		return errors.Wrapf(err, "WriteArtifacts: failed to write %s", name)
	}

	w.manifest.AddFile(checkpoint.FileEntry{Name: name, Year: batch.Year, Records: len(batch.Records), Bytes: len(data)})
	if fp, ok := msg.Metadata[processor.RegistryFingerprintKey].(string); ok {
		w.manifest.RegistryFingerprint = fp
	}

	log.WithFields(log.Fields{
		"consumer": "artifacts",
		"stage":    w.stage,
		"file":     name,
		"records":  len(batch.Records),
	}).Info("wrote artifact")

	for _, p := range w.processors {
		if err := p.Process(ctx, msg); err != nil {
			return errors.Wrapf(err, "error in downstream processor %T", p)
		}
	}
	return nil
}

// AddSkipped records input files the source could not read.
func (w *WriteArtifacts) AddSkipped(names ...string) {
	w.manifest.Skipped = append(w.manifest.Skipped, names...)
}

// Manifest returns the manifest as it stands.
func (w *WriteArtifacts) Manifest() *checkpoint.Manifest {
	return w.manifest
}

// Close writes manifest.json. A second call is a no-op.
func (w *WriteArtifacts) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	defer w.storageClient.Close()

	data, err := w.manifest.Encode()
	if err != nil {
		return err
	}
	if err := w.storageClient.Write(context.Background(), w.storage.objectKey(checkpoint.ManifestName), data); err != nil {
		return errors.Wrap(err, "WriteArtifacts: failed to write manifest")
	}
	log.WithFields(log.Fields{
		"consumer": "artifacts",
		"stage":    w.stage,
		"files":    len(w.manifest.Files),
		"records":  w.manifest.Records,
		"run_id":   w.manifest.RunID,
	}).Info("wrote manifest")
	return nil
}

// Abort releases the storage client without writing the manifest.
// Artifacts already written by Process stay where they are.
func (w *WriteArtifacts) Abort() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.storageClient.Close()
}

func (w *WriteArtifacts) Summary() []string {
	return []string{fmt.Sprintf("%s: wrote %d artifacts, %d records, %d skipped files",
		w.stage, len(w.manifest.Files), w.manifest.Records, len(w.manifest.Skipped))}
}
