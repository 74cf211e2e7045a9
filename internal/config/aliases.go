package config

import (
	_ "embed"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed aliases.yaml
var aliasesYAML string

// AliasDefinitions holds all alias mappings
type AliasDefinitions struct {
	Version int `yaml:"version"`
	Aliases struct {
		Sources    map[string]string `yaml:"sources"`
		Processors map[string]string `yaml:"processors"`
		Consumers  map[string]string `yaml:"consumers"`
	} `yaml:"aliases"`
}

// AliasResolver maps short component names onto factory type names.
type AliasResolver struct {
	definitions *AliasDefinitions
}

func NewAliasResolver() (*AliasResolver, error) {
	var defs AliasDefinitions
	if err := yaml.Unmarshal([]byte(aliasesYAML), &defs); err != nil {
		return nil, errors.Wrap(err, "parsing alias definitions")
	}
	return &AliasResolver{definitions: &defs}, nil
}

// ResolveSourceType returns the type an alias stands for. Unknown names are
// returned as-is with false.
func (r *AliasResolver) ResolveSourceType(alias string) (string, bool) {
	return resolve(alias, r.definitions.Aliases.Sources)
}

func (r *AliasResolver) ResolveProcessorType(alias string) (string, bool) {
	return resolve(alias, r.definitions.Aliases.Processors)
}

func (r *AliasResolver) ResolveConsumerType(alias string) (string, bool) {
	return resolve(alias, r.definitions.Aliases.Consumers)
}

func resolve(alias string, aliases map[string]string) (string, bool) {
	if typ, ok := aliases[strings.ToLower(alias)]; ok {
		return typ, true
	}
	return alias, false
}

func (r *AliasResolver) GetSimilarSource(input string, known []string) []string {
	return similar(input, r.definitions.Aliases.Sources, known)
}

func (r *AliasResolver) GetSimilarProcessor(input string, known []string) []string {
	return similar(input, r.definitions.Aliases.Processors, known)
}

func (r *AliasResolver) GetSimilarConsumer(input string, known []string) []string {
	return similar(input, r.definitions.Aliases.Consumers, known)
}

// similar finds aliases and type names close to input (for typo
// suggestions), sorted and capped at five.
func similar(input string, aliases map[string]string, known []string) []string {
	input = strings.ToLower(input)
	candidates := append([]string(nil), known...)
	for alias := range aliases {
		candidates = append(candidates, alias)
	}
	sort.Strings(candidates)

	var out []string
	seen := make(map[string]bool)
	for _, c := range candidates {
		lower := strings.ToLower(c)
		match := strings.Contains(lower, input) || strings.Contains(input, lower) ||
			(len(input) > 2 && strings.HasPrefix(lower, input[:3]))
		if match && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	if len(out) > 5 {
		out = out[:5]
	}
	return out
}
