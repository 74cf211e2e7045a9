package consumer

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/withObsrvr/whr-pipeline/processor"
)

// SaveToParquetConfig defines configuration for the Parquet export consumer
type SaveToParquetConfig struct {
	Storage     StorageConfig
	Compression string // "snappy", "gzip", "zstd", "lz4", "brotli", "none"
	PartitionBy string // "year" or "none"
	FilePrefix  string
	DryRun      bool
}

// SaveToParquet exports the cleaned corpus. With year partitioning every
// batch becomes its own file, otherwise the whole corpus is one file
// written on Close.
type SaveToParquet struct {
	config        SaveToParquetConfig
	storageClient StorageClient
	schema        *RecordParquetSchema
	processors    []processor.Processor
	ctx           context.Context

	buffer []processor.YearBatch

	filesWritten   int
	recordsWritten int
	bytesWritten   int
}

func NewSaveToParquet(config map[string]interface{}) (*SaveToParquet, error) {
	cfg, err := parseSaveToParquetConfig(config)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	var client StorageClient
	if !cfg.DryRun {
		client, err = createStorageClient(ctx, cfg.Storage)
		if err != nil {
			return nil, errors.Wrap(err, "SaveToParquet: failed to create storage client")
		}
	}
	return newSaveToParquet(ctx, cfg, client), nil
}

func newSaveToParquet(ctx context.Context, cfg SaveToParquetConfig, client StorageClient) *SaveToParquet {
	log.WithFields(log.Fields{
		"consumer":     "parquet",
		"storage_type": cfg.Storage.StorageType,
		"compression":  cfg.Compression,
		"partition_by": cfg.PartitionBy,
	}).Info("SaveToParquet initialized")

	return &SaveToParquet{
		config:        cfg,
		storageClient: client,
		schema:        NewRecordParquetSchema(),
		ctx:           ctx,
	}
}

func parseSaveToParquetConfig(config map[string]interface{}) (SaveToParquetConfig, error) {
	storage, err := storageConfigFrom(config, "parquet", "application/octet-stream")
	if err != nil {
		return SaveToParquetConfig{}, errors.Wrap(err, "SaveToParquet")
	}
	cfg := SaveToParquetConfig{
		Storage:     storage,
		Compression: strings.ToLower(getString(config, "compression", "snappy")),
		PartitionBy: strings.ToLower(getString(config, "partition_by", "year")),
		FilePrefix:  getString(config, "file_prefix", processor.DefaultArtifactPrefix),
		DryRun:      getBool(config, "dry_run", false),
	}
	switch cfg.PartitionBy {
	case "year", "none":
	default:
		return cfg, errors.Errorf("SaveToParquet: unsupported partition_by %q (want year or none)", cfg.PartitionBy)
	}
	return cfg, nil
}

func (s *SaveToParquet) Subscribe(p processor.Processor) {
	s.processors = append(s.processors, p)
}

func (s *SaveToParquet) Process(ctx context.Context, msg processor.Message) error {
	batch, err := processor.BatchFromMessage(msg)
	if err != nil {
		return errors.Wrap(err, "SaveToParquet")
	}

	if s.config.PartitionBy == "year" {
		if err := s.flush(ctx, []processor.YearBatch{batch}, s.filePath(batch.Year)); err != nil {
			return err
		}
	} else {
		s.buffer = append(s.buffer, batch.Clone())
	}

	for _, p := range s.processors {
		if err := p.Process(ctx, msg); err != nil {
			return errors.Wrapf(err, "error in downstream processor %T", p)
		}
	}
	return nil
}

// filePath places a year under a hive-style partition directory. Year 0
// means the unpartitioned corpus file.
func (s *SaveToParquet) filePath(year int) string {
	var name string
	if year == 0 {
		name = s.config.FilePrefix + ".parquet"
	} else {
		name = fmt.Sprintf("year=%d/%s_%d.parquet", year, s.config.FilePrefix, year)
	}
	return s.config.Storage.objectKey(name)
}

func (s *SaveToParquet) flush(ctx context.Context, batches []processor.YearBatch, key string) error {
	builder := NewRecordBatchBuilder(s.schema)
	defer builder.Release()
	for _, b := range batches {
		builder.Append(b)
	}
	rows := builder.Len()

	if s.config.DryRun {
		log.WithFields(log.Fields{"consumer": "parquet", "key": key, "records": rows}).Info("[DRY RUN] would write parquet file")
		return nil
	}

	record := builder.NewRecord()
	defer record.Release()

	data, err := s.writeParquet(record)
	if err != nil {
		return errors.Wrap(err, "SaveToParquet: failed to write parquet")
	}
	if err := s.storageClient.Write(ctx, key, data); err != nil {
		return errors.Wrap(err, "SaveToParquet: failed to write to storage")
	}

	s.filesWritten++
	s.recordsWritten += rows
	s.bytesWritten += len(data)
	log.WithFields(log.Fields{"consumer": "parquet", "key": key, "records": rows, "bytes": len(data)}).Info("wrote parquet file")
	return nil
}

// writeParquet writes an Arrow record to Parquet format
func (s *SaveToParquet) writeParquet(record arrow.Record) ([]byte, error) {
	var buf bytes.Buffer

	props := parquet.NewWriterProperties(
		parquet.WithCompression(s.getCompressionType()),
		parquet.WithDataPageSize(1024*1024),
	)
	writer, err := pqarrow.NewFileWriter(record.Schema(), &buf, props, pqarrow.NewArrowWriterProperties())
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Parquet writer")
	}
	if err := writer.Write(record); err != nil {
		writer.Close()
		return nil, errors.Wrap(err, "failed to write record")
	}
	if err := writer.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to close writer")
	}
	return buf.Bytes(), nil
}

func (s *SaveToParquet) getCompressionType() compress.Compression {
	switch s.config.Compression {
	case "snappy":
		return compress.Codecs.Snappy
	case "gzip":
		return compress.Codecs.Gzip
	case "zstd":
		return compress.Codecs.Zstd
	case "lz4":
		return compress.Codecs.Lz4
	case "brotli":
		return compress.Codecs.Brotli
	case "none":
		return compress.Codecs.Uncompressed
	default:
		return compress.Codecs.Snappy
	}
}

// Close writes the buffered corpus when unpartitioned and closes storage.
func (s *SaveToParquet) Close() error {
	if len(s.buffer) > 0 {
		sort.SliceStable(s.buffer, func(i, j int) bool { return s.buffer[i].Year < s.buffer[j].Year })
		if err := s.flush(s.ctx, s.buffer, s.filePath(0)); err != nil {
			return errors.Wrap(err, "error flushing on close")
		}
		s.buffer = nil
	}

	if s.storageClient != nil {
		client := s.storageClient
		s.storageClient = nil
		if err := client.Close(); err != nil {
			return errors.Wrap(err, "error closing storage client")
		}
	}
	log.WithFields(log.Fields{
		"consumer": "parquet",
		"files":    s.filesWritten,
		"records":  s.recordsWritten,
		"bytes":    s.bytesWritten,
	}).Info("Parquet export closed")
	return nil
}

// Abort drops the unflushed buffer and releases storage. Per-year files
// already written stay.
func (s *SaveToParquet) Abort() error {
	s.buffer = nil
	if s.storageClient == nil {
		return nil
	}
	client := s.storageClient
	s.storageClient = nil
	return client.Close()
}

func (s *SaveToParquet) Summary() []string {
	return []string{fmt.Sprintf("parquet: %d files, %d records, %d bytes", s.filesWritten, s.recordsWritten, s.bytesWritten)}
}
