package config

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError represents a configuration validation error with helpful information
type ValidationError struct {
	Field       string
	Value       interface{}
	Problem     string
	Suggestion  string
	ValidValues []string
}

func (e ValidationError) Error() string {
	var msg strings.Builder
	msg.WriteString("\nError in configuration:\n\n")
	msg.WriteString(fmt.Sprintf("  %s: %v  # <-- %s\n\n", e.Field, e.Value, e.Problem))

	if e.Suggestion != "" {
		msg.WriteString(fmt.Sprintf("Did you mean '%s'?\n\n", e.Suggestion))
	}

	if len(e.ValidValues) > 0 {
		msg.WriteString("Valid options:\n")
		for _, v := range e.ValidValues {
			msg.WriteString(fmt.Sprintf("  - %s\n", v))
		}
		msg.WriteString("\n")
	}
	return msg.String()
}

// ValidationResult holds multiple validation errors
type ValidationResult struct {
	Errors   []error
	Warnings []string
}

func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

func (r *ValidationResult) AddError(err error) {
	r.Errors = append(r.Errors, err)
}

func (r *ValidationResult) AddWarning(warning string) {
	r.Warnings = append(r.Warnings, warning)
}

// Err folds every error into one, or returns nil.
func (r *ValidationResult) Err() error {
	if !r.HasErrors() {
		return nil
	}
	parts := make([]string, len(r.Errors))
	for i, err := range r.Errors {
		parts[i] = strings.TrimSpace(err.Error())
	}
	return fmt.Errorf("%d configuration errors:\n%s", len(r.Errors), strings.Join(parts, "\n\n"))
}

// Component is one source, processor or consumer entry.
type Component struct {
	Type   string
	Config map[string]interface{}
}

type Pipeline struct {
	Name       string
	Source     Component
	Processors []Component
	Consumers  []Component
}

// KnownTypes lists the type names the factories can build.
type KnownTypes struct {
	Sources    []string
	Processors []string
	Consumers  []string
}

// Validator checks pipeline definitions before anything is built.
type Validator struct {
	resolver *AliasResolver
	known    KnownTypes
}

func NewValidator(resolver *AliasResolver, known KnownTypes) *Validator {
	return &Validator{resolver: resolver, known: known}
}

// ValidatePipeline adds every problem of p to result.
func (v *Validator) ValidatePipeline(p Pipeline, result *ValidationResult) {
	prefix := "pipelines." + p.Name

	if typ, ok := v.checkType(prefix+".source.type", p.Source.Type, v.resolver.ResolveSourceType, v.resolver.GetSimilarSource, v.known.Sources, result); ok {
		v.validateConfig(prefix+".source", typ, p.Source.Config, result)
	}
	for i, c := range p.Processors {
		field := fmt.Sprintf("%s.processors[%d]", prefix, i)
		if typ, ok := v.checkType(field+".type", c.Type, v.resolver.ResolveProcessorType, v.resolver.GetSimilarProcessor, v.known.Processors, result); ok {
			v.validateConfig(field, typ, c.Config, result)
		}
	}
	if len(p.Consumers) == 0 {
		result.AddWarning(fmt.Sprintf("pipeline '%s' has no consumers; its output is discarded", p.Name))
	}
	for i, c := range p.Consumers {
		field := fmt.Sprintf("%s.consumers[%d]", prefix, i)
		if typ, ok := v.checkType(field+".type", c.Type, v.resolver.ResolveConsumerType, v.resolver.GetSimilarConsumer, v.known.Consumers, result); ok {
			v.validateConfig(field, typ, c.Config, result)
		}
	}
}

func (v *Validator) checkType(
	field, name string,
	resolve func(string) (string, bool),
	similar func(string, []string) []string,
	known []string,
	result *ValidationResult,
) (string, bool) {
	if name == "" {
		result.AddError(ValidationError{Field: field, Value: `""`, Problem: "type is required", ValidValues: known})
		return "", false
	}
	typ, _ := resolve(name)
	for _, k := range known {
		if k == typ {
			return typ, true
		}
	}
	result.AddError(ValidationError{
		Field:       field,
		Value:       name,
		Problem:     "unknown component type",
		Suggestion:  strings.Join(similar(name, known), " or "),
		ValidValues: known,
	})
	return "", false
}

type fieldRule struct {
	known    []string
	required []string
	enums    map[string][]string
	bools    []string
}

var storageFields = []string{"storage_type", "local_path", "bucket_name", "path_prefix", "region", "credentials_file", "max_retries"}

var rules = map[string]fieldRule{
	"TabularSourceAdapter":  {known: []string{"input_dir", "pattern"}, required: []string{"input_dir"}},
	"ArtifactSourceAdapter": {known: []string{"input_dir", "file_prefix", "expect_stage"}, required: []string{"input_dir"}},
	"IdentityAssigner":      {},
	"RecordNormalizer":      {},
	"IntegrityFilter":       {known: []string{"fail_on_issues"}, bools: []string{"fail_on_issues"}},
	"WriteArtifacts": {
		known: append([]string{"output_dir", "stage", "file_prefix"}, storageFields...),
	},
	"EmitDML": {
		known: append([]string{"output_dir", "sql_file", "mode", "seed", "years", "run_id"}, storageFields...),
		enums: map[string][]string{"mode": {"strict", "dense"}},
	},
	"SaveToParquet": {
		known: append([]string{"compression", "partition_by", "file_prefix", "dry_run"}, storageFields...),
		enums: map[string][]string{
			"compression":  {"snappy", "gzip", "zstd", "lz4", "brotli", "none"},
			"partition_by": {"year", "none"},
		},
		bools: []string{"dry_run"},
	},
	"SaveToExcel":    {known: []string{"file_path", "sheet"}, required: []string{"file_path"}},
	"StdoutConsumer": {},
}

func (v *Validator) validateConfig(field, typ string, config map[string]interface{}, result *ValidationResult) {
	rule := rules[typ]

	for _, req := range rule.required {
		if s, ok := config[req].(string); !ok || s == "" {
			result.AddError(ValidationError{Field: field + ".config." + req, Value: config[req], Problem: "required for " + typ})
		}
	}
	if typ == "WriteArtifacts" && config["output_dir"] == nil && config["local_path"] == nil && config["bucket_name"] == nil {
		result.AddError(ValidationError{Field: field + ".config.output_dir", Value: nil, Problem: "required for WriteArtifacts"})
	}

	for key, valid := range rule.enums {
		raw, present := config[key]
		if !present {
			continue
		}
		s, _ := raw.(string)
		if !containsFold(valid, s) {
			result.AddError(ValidationError{Field: field + ".config." + key, Value: raw, Problem: "unsupported value", ValidValues: valid})
		}
	}
	for _, key := range rule.bools {
		if raw, present := config[key]; present {
			if _, ok := raw.(bool); !ok {
				result.AddError(ValidationError{Field: field + ".config." + key, Value: raw, Problem: "must be true or false"})
			}
		}
	}

	keys := make([]string, 0, len(config))
	for key := range config {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if containsFold(rule.known, key) {
			continue
		}
		msg := fmt.Sprintf("%s.config: unknown field '%s' is ignored", field, key)
		if s := findSimilarField(key, rule.known); s != "" {
			msg += fmt.Sprintf(" (did you mean '%s'?)", s)
		}
		result.AddWarning(msg)
	}
}

func findSimilarField(field string, knownFields []string) string {
	field = strings.ToLower(field)
	for _, known := range knownFields {
		knownLower := strings.ToLower(known)
		if strings.Contains(knownLower, field) || strings.Contains(field, knownLower) {
			return known
		}
	}
	return ""
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
