package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ManifestName is the file name of the manifest inside an artifact dir.
const ManifestName = "manifest.json"

// ManifestVersion is the current manifest format version.
const ManifestVersion = "1.0"

// FileEntry describes one artifact written by a stage.
type FileEntry struct {
	Name    string `json:"name"`
	Year    int    `json:"year"`
	Records int    `json:"records"`
	Bytes   int    `json:"bytes"`
}

// Manifest records what a stage wrote into an artifact directory.
type Manifest struct {
	Version             string      `json:"version"`
	RunID               string      `json:"run_id"`
	Stage               string      `json:"stage"`
	ConfigHash          string      `json:"config_hash"`
	Files               []FileEntry `json:"files"`
	Skipped             []string    `json:"skipped,omitempty"`
	Records             int         `json:"records"`
	RegistryFingerprint string      `json:"registry_fingerprint,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
}

// NewManifest starts a manifest for stage with a fresh run id.
func NewManifest(stage string, config interface{}) *Manifest {
	return &Manifest{
		Version:    ManifestVersion,
		RunID:      uuid.NewString(),
		Stage:      stage,
		ConfigHash: ConfigHash(config),
	}
}

// AddFile appends an artifact entry and updates the record total.
func (m *Manifest) AddFile(entry FileEntry) {
	m.Files = append(m.Files, entry)
	m.Records += entry.Records
}

// Encode stamps m and renders it as indented JSON.
func (m *Manifest) Encode() ([]byte, error) {
	m.CreatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal manifest")
	}
	return append(data, '\n'), nil
}

// WriteManifest stamps m and writes it atomically into dir.
func WriteManifest(dir string, m *Manifest) error {
	data, err := m.Encode()
	if err != nil {
		return err
	}
	return errors.Wrap(WriteAtomic(filepath.Join(dir, ManifestName), data), "failed to write manifest")
}

// LoadManifest reads the manifest of dir. A missing manifest yields an
// error satisfying os.IsNotExist after errors.Cause.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read manifest")
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal manifest (possibly corrupted)")
	}
	if m.Version == "" || m.Stage == "" {
		return nil, errors.New("invalid manifest: missing required fields")
	}
	return &m, nil
}

// ConfigHash fingerprints a component config so runs can be compared.
func ConfigHash(config interface{}) string {
	if config == nil {
		return "no-config"
	}
	data, err := json.Marshal(config)
	if err != nil {
		return "unhashable"
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
