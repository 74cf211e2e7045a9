package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var known = KnownTypes{
	Sources:    []string{"ArtifactSourceAdapter", "TabularSourceAdapter"},
	Processors: []string{"IdentityAssigner", "IntegrityFilter", "RecordNormalizer", "WriteArtifacts"},
	Consumers:  []string{"EmitDML", "SaveToExcel", "SaveToParquet", "StdoutConsumer", "WriteArtifacts"},
}

func newValidator(t *testing.T) *Validator {
	t.Helper()
	r, err := NewAliasResolver()
	require.NoError(t, err)
	return NewValidator(r, known)
}

func TestResolveAliases(t *testing.T) {
	r, err := NewAliasResolver()
	require.NoError(t, err)

	typ, ok := r.ResolveSourceType("CSV")
	assert.True(t, ok)
	assert.Equal(t, "TabularSourceAdapter", typ)

	typ, ok = r.ResolveProcessorType("normalise")
	assert.True(t, ok)
	assert.Equal(t, "RecordNormalizer", typ)

	typ, ok = r.ResolveConsumerType("EmitDML")
	assert.False(t, ok)
	assert.Equal(t, "EmitDML", typ)

	assert.Contains(t, r.GetSimilarConsumer("parq", known.Consumers), "parquet")
	assert.LessOrEqual(t, len(r.GetSimilarConsumer("s", known.Consumers)), 5)
}

func TestValidatePipelineClean(t *testing.T) {
	v := newValidator(t)
	var result ValidationResult
	v.ValidatePipeline(Pipeline{
		Name:   "whr",
		Source: Component{Type: "tabular", Config: map[string]interface{}{"input_dir": "data"}},
		Processors: []Component{
			{Type: "assign_ids"},
			{Type: "checkpoint", Config: map[string]interface{}{"output_dir": "artifacts/identified", "stage": "assign-ids"}},
			{Type: "normalize"},
			{Type: "IntegrityFilter", Config: map[string]interface{}{"fail_on_issues": true}},
		},
		Consumers: []Component{
			{Type: "dml", Config: map[string]interface{}{"mode": "dense", "seed": 42}},
		},
	}, &result)

	assert.False(t, result.HasErrors(), result.Err())
	assert.Empty(t, result.Warnings)
	assert.NoError(t, result.Err())
}

func TestValidatePipelineUnknownTypeSuggests(t *testing.T) {
	v := newValidator(t)
	var result ValidationResult
	v.ValidatePipeline(Pipeline{
		Name:      "whr",
		Source:    Component{Type: "tabluar", Config: map[string]interface{}{"input_dir": "data"}},
		Consumers: []Component{{Type: "parqet"}},
	}, &result)

	require.Len(t, result.Errors, 2)
	var ve ValidationError
	require.ErrorAs(t, result.Errors[1], &ve)
	assert.Equal(t, "pipelines.whr.consumers[0].type", ve.Field)
	assert.Contains(t, ve.Suggestion, "parquet")
	assert.Contains(t, ve.Error(), "Did you mean")
	assert.Contains(t, ve.Error(), "Valid options:")
}

func TestValidatePipelineConfigFields(t *testing.T) {
	v := newValidator(t)
	var result ValidationResult
	v.ValidatePipeline(Pipeline{
		Name:   "whr",
		Source: Component{Type: "artifacts", Config: map[string]interface{}{}},
		Processors: []Component{
			{Type: "filter", Config: map[string]interface{}{"fail_on_issues": "yes"}},
		},
		Consumers: []Component{
			{Type: "dml", Config: map[string]interface{}{"mode": "loose", "dir": "out"}},
			{Type: "artifacts", Config: map[string]interface{}{"stage": "filter"}},
		},
	}, &result)

	assert.Len(t, result.Errors, 4, result.Err())
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "did you mean 'output_dir'?")

	err := result.Err()
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "4 configuration errors"))
}

func TestValidatePipelineWithoutConsumersWarns(t *testing.T) {
	v := newValidator(t)
	var result ValidationResult
	v.ValidatePipeline(Pipeline{
		Name:   "dry",
		Source: Component{Type: "csv", Config: map[string]interface{}{"input_dir": "data"}},
	}, &result)
	assert.False(t, result.HasErrors())
	assert.Len(t, result.Warnings, 1)
}
