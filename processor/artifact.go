package processor

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/pkg/errors"
)

// DefaultArtifactPrefix names the per-year artifacts: <prefix>_<year>.json
const DefaultArtifactPrefix = "world_happiness"

var yearPattern = regexp.MustCompile(`_(\d{4})\.[A-Za-z0-9]+$`)

// ArtifactName returns the file name of the artifact for year.
func ArtifactName(prefix string, year int) string {
	if prefix == "" {
		prefix = DefaultArtifactPrefix
	}
	return fmt.Sprintf("%s_%d.json", prefix, year)
}

// YearFromFilename extracts the year of a <prefix>_<year>.<ext> file name.
func YearFromFilename(name string) (int, bool) {
	m := yearPattern.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return 0, false
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return year, true
}

// EncodeArtifact renders records as an indented JSON array in canonical
// field order.
func EncodeArtifact(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", " ")
	if err != nil {
		return nil, errors.Wrap(err, "encode artifact")
	}
	return append(data, '\n'), nil
}

// DecodeArtifact parses a JSON array of records.
func DecodeArtifact(data []byte) ([]Record, error) {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Wrap(err, "decode artifact")
	}
	return records, nil
}
