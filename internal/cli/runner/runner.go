package runner

import (
	"context"
	"os"
	"sort"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/withObsrvr/whr-pipeline/consumer"
	"github.com/withObsrvr/whr-pipeline/internal/config"
	"github.com/withObsrvr/whr-pipeline/pkg/pipeline"
	"github.com/withObsrvr/whr-pipeline/processor"
)

type Options struct {
	ConfigFile string
	// Pipeline restricts the run to one named pipeline.
	Pipeline string
	Verbose  bool
}

// Factory functions for creating pipeline components
type Factories struct {
	CreateSourceAdapter func(SourceConfig) (SourceAdapter, error)
	CreateProcessor     func(processor.ProcessorConfig) (processor.Processor, error)
	CreateConsumer      func(consumer.ConsumerConfig) (processor.Processor, error)
	Known               config.KnownTypes
}

type Runner struct {
	opts      Options
	factories Factories
}

type Config struct {
	Pipelines map[string]PipelineConfig `yaml:"pipelines"`
}

type PipelineConfig struct {
	Name       string                      `yaml:"name"`
	Source     SourceConfig                `yaml:"source"`
	Processors []processor.ProcessorConfig `yaml:"processors"`
	Consumers  []consumer.ConsumerConfig   `yaml:"consumers"`
}

type SourceConfig struct {
	Type   string                 `yaml:"type"`
	Config map[string]interface{} `yaml:"config"`
}

type SourceAdapter interface {
	Run(context.Context) error
	Subscribe(processor.Processor)
}

// Result is what one pipeline run reports back.
type Result struct {
	Pipeline string
	Summary  []string
	Warnings []string
	Source   SourceAdapter
	// Components holds the built processors and consumers in chain order.
	Components []processor.Processor
}

type summarizer interface {
	Summary() []string
}

type closer interface {
	Close() error
}

// aborter releases a component's resources without flushing its output.
type aborter interface {
	Abort() error
}

// abort releases every component that will not be closed. Output a
// component already streamed, such as per-year artifacts or the manifest
// of a tap that closed earlier, is left in place.
func abort(name string, components []processor.Processor) {
	for _, c := range components {
		a, ok := c.(aborter)
		if !ok {
			continue
		}
		if err := a.Abort(); err != nil {
			log.WithField("pipeline", name).WithError(err).Warnf("error aborting %T", c)
		}
	}
}

func New(opts Options, factories Factories) *Runner {
	return &Runner{
		opts:      opts,
		factories: factories,
	}
}

// LoadConfig reads a pipelines file.
func LoadConfig(path string) (*Config, error) {
	configBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading config file %s", path)
	}
	var cfg Config
	if err := yaml.Unmarshal(configBytes, &cfg); err != nil {
		return nil, errors.Wrap(err, "error parsing config")
	}
	if len(cfg.Pipelines) == 0 {
		return nil, errors.Errorf("config file %s defines no pipelines", path)
	}
	return &cfg, nil
}

// Run executes the configured pipelines in name order and stops at the
// first failing one.
func (r *Runner) Run(ctx context.Context) ([]*Result, error) {
	cfg, err := LoadConfig(r.opts.ConfigFile)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(cfg.Pipelines))
	for name := range cfg.Pipelines {
		if r.opts.Pipeline == "" || r.opts.Pipeline == name {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, errors.Errorf("pipeline %q not found in %s", r.opts.Pipeline, r.opts.ConfigFile)
	}
	sort.Strings(names)

	var results []*Result
	for _, name := range names {
		log.WithField("pipeline", name).Info("starting pipeline")
		res, err := RunPipeline(ctx, name, cfg.Pipelines[name], r.factories)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			return results, errors.Wrapf(err, "error in pipeline %s", name)
		}
		log.WithField("pipeline", name).Info("pipeline finished")
	}
	return results, nil
}

// Resolve rewrites alias component types into factory type names.
func Resolve(pc PipelineConfig, resolver *config.AliasResolver) PipelineConfig {
	out := pc
	out.Source.Type, _ = resolver.ResolveSourceType(pc.Source.Type)
	out.Processors = make([]processor.ProcessorConfig, len(pc.Processors))
	for i, p := range pc.Processors {
		p.Type, _ = resolver.ResolveProcessorType(p.Type)
		out.Processors[i] = p
	}
	out.Consumers = make([]consumer.ConsumerConfig, len(pc.Consumers))
	for i, c := range pc.Consumers {
		c.Type, _ = resolver.ResolveConsumerType(c.Type)
		out.Consumers[i] = c
	}
	return out
}

// Validate checks component types and their configs. Errors carry "did you
// mean" suggestions; warnings are returned for the caller to show.
func Validate(name string, pc PipelineConfig, resolver *config.AliasResolver, known config.KnownTypes) ([]string, error) {
	p := config.Pipeline{
		Name:   name,
		Source: config.Component{Type: pc.Source.Type, Config: pc.Source.Config},
	}
	for _, c := range pc.Processors {
		p.Processors = append(p.Processors, config.Component{Type: c.Type, Config: c.Config})
	}
	for _, c := range pc.Consumers {
		p.Consumers = append(p.Consumers, config.Component{Type: c.Type, Config: c.Config})
	}

	var result config.ValidationResult
	config.NewValidator(resolver, known).ValidatePipeline(p, &result)
	return result.Warnings, result.Err()
}

// RunPipeline validates, builds and runs one pipeline. When the source
// fails, consumers are not closed so nothing is flushed. After a clean
// run processors are closed before consumers.
func RunPipeline(ctx context.Context, name string, pc PipelineConfig, f Factories) (*Result, error) {
	resolver, err := config.NewAliasResolver()
	if err != nil {
		return nil, err
	}
	warnings, err := Validate(name, pc, resolver, f.Known)
	for _, w := range warnings {
		log.WithField("pipeline", name).Warn(w)
	}
	if err != nil {
		return nil, err
	}
	pc = Resolve(pc, resolver)
	if pc.Source.Config == nil {
		pc.Source.Config = map[string]interface{}{}
	}

	source, err := f.CreateSourceAdapter(pc.Source)
	if err != nil {
		return nil, errors.Wrap(err, "error creating source")
	}

	processors := make([]processor.Processor, len(pc.Processors))
	for i, procConfig := range pc.Processors {
		if procConfig.Config == nil {
			procConfig.Config = map[string]interface{}{}
		}
		proc, err := f.CreateProcessor(procConfig)
		if err != nil {
			return nil, errors.Wrapf(err, "error creating processor %s", procConfig.Type)
		}
		processors[i] = proc
	}

	consumers := make([]processor.Processor, len(pc.Consumers))
	for i, consConfig := range pc.Consumers {
		if consConfig.Config == nil {
			consConfig.Config = map[string]interface{}{}
		}
		cons, err := f.CreateConsumer(consConfig)
		if err != nil {
			return nil, errors.Wrapf(err, "error creating consumer %s", consConfig.Type)
		}
		consumers[i] = cons
	}

	for _, head := range pipeline.BuildProcessorChain(processors, consumers) {
		source.Subscribe(head)
	}

	res := &Result{
		Pipeline:   name,
		Warnings:   warnings,
		Source:     source,
		Components: append(append([]processor.Processor{}, processors...), consumers...),
	}

	if err := source.Run(ctx); err != nil {
		log.WithField("pipeline", name).WithError(err).Error("source failed, outputs not flushed")
		abort(name, res.Components)
		res.Summary = collectSummary(source, nil)
		return res, errors.Wrap(err, "source failed")
	}

	if s, ok := source.(interface{ Skipped() []string }); ok {
		if skipped := s.Skipped(); len(skipped) > 0 {
			for _, c := range res.Components {
				if a, ok := c.(interface{ AddSkipped(...string) }); ok {
					a.AddSkipped(skipped...)
				}
			}
		}
	}

	for i, proc := range processors {
		if c, ok := proc.(closer); ok {
			if err := c.Close(); err != nil {
				abort(name, res.Components[i:])
				res.Summary = collectSummary(source, processors)
				return res, errors.Wrapf(err, "error closing processor %T", proc)
			}
		}
	}

	log.WithField("pipeline", name).Debug("source completed, flushing consumers")
	for i, cons := range consumers {
		if c, ok := cons.(closer); ok {
			if err := c.Close(); err != nil {
				abort(name, consumers[i:])
				res.Summary = collectSummary(source, res.Components)
				return res, errors.Wrapf(err, "error closing consumer %T", cons)
			}
		}
	}

	res.Summary = collectSummary(source, res.Components)
	return res, nil
}

func collectSummary(source SourceAdapter, components []processor.Processor) []string {
	var lines []string
	if s, ok := source.(summarizer); ok {
		lines = append(lines, s.Summary()...)
	}
	for _, c := range components {
		if s, ok := c.(summarizer); ok {
			lines = append(lines, s.Summary()...)
		}
	}
	return lines
}
