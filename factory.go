package main

import (
	"github.com/pkg/errors"

	"github.com/withObsrvr/whr-pipeline/consumer"
	"github.com/withObsrvr/whr-pipeline/internal/cli/runner"
	"github.com/withObsrvr/whr-pipeline/internal/config"
	"github.com/withObsrvr/whr-pipeline/processor"
)

type SourceConfig = runner.SourceConfig

type SourceAdapter = runner.SourceAdapter

// Factory functions exported for use by the CLI runner

func CreateSourceAdapterFunc(sourceConfig SourceConfig) (SourceAdapter, error) {
	switch sourceConfig.Type {
	case "TabularSourceAdapter":
		return NewTabularSourceAdapter(sourceConfig.Config)
	case "ArtifactSourceAdapter":
		return NewArtifactSourceAdapter(sourceConfig.Config)
	default:
		return nil, errors.Errorf("unsupported source type: %s", sourceConfig.Type)
	}
}

func CreateProcessorFunc(processorConfig processor.ProcessorConfig) (processor.Processor, error) {
	switch processorConfig.Type {
	case "IdentityAssigner":
		return processor.NewIdentityAssigner(processorConfig.Config)
	case "RecordNormalizer":
		return processor.NewRecordNormalizer(processorConfig.Config)
	case "IntegrityFilter":
		return processor.NewIntegrityFilter(processorConfig.Config)
	case "WriteArtifacts":
		// a tap between stages; it forwards every batch unchanged
		return consumer.NewWriteArtifacts(processorConfig.Config)
	default:
		return nil, errors.Errorf("unsupported processor type: %s", processorConfig.Type)
	}
}

func CreateConsumerFunc(consumerConfig consumer.ConsumerConfig) (processor.Processor, error) {
	switch consumerConfig.Type {
	case "WriteArtifacts":
		return consumer.NewWriteArtifacts(consumerConfig.Config)
	case "EmitDML":
		return consumer.NewEmitDML(consumerConfig.Config)
	case "SaveToParquet":
		return consumer.NewSaveToParquet(consumerConfig.Config)
	case "SaveToExcel":
		return consumer.NewSaveToExcel(consumerConfig.Config)
	case "StdoutConsumer":
		return consumer.NewStdoutConsumer(), nil
	default:
		return nil, errors.Errorf("unsupported consumer type: %s", consumerConfig.Type)
	}
}

// KnownTypes lists every type the factories above accept.
var KnownTypes = config.KnownTypes{
	Sources:    []string{"ArtifactSourceAdapter", "TabularSourceAdapter"},
	Processors: []string{"IdentityAssigner", "IntegrityFilter", "RecordNormalizer", "WriteArtifacts"},
	Consumers:  []string{"EmitDML", "SaveToExcel", "SaveToParquet", "StdoutConsumer", "WriteArtifacts"},
}

func Factories() runner.Factories {
	return runner.Factories{
		CreateSourceAdapter: CreateSourceAdapterFunc,
		CreateProcessor:     CreateProcessorFunc,
		CreateConsumer:      CreateConsumerFunc,
		Known:               KnownTypes,
	}
}
