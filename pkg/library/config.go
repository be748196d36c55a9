package library

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/patronlib/librarystack/internal/desk"
	"github.com/patronlib/librarystack/internal/stacks"
)

// StorageKind selects which internal/storage.Backend a Library wires
// itself to.
type StorageKind string

const (
	StorageFile   StorageKind = "file"
	StorageSQLite StorageKind = "sqlite"
)

// StoreConfig configures the underlying Stacks instance, mirroring
// stacks.Config with yaml tags for host-program configuration files.
type StoreConfig = stacks.Config

// DeskConfig configures the Circulation Desk's auto-escalation
// thresholds, mirroring desk.Config with yaml tags.
type DeskConfig = desk.Config

// Config is the top-level configuration for a Library, one struct per
// concern. A host program builds this directly, or loads it from YAML
// via LoadConfig — the loader is an optional convenience, not a
// requirement; no CLI flags or environment variables belong here.
type Config struct {
	Store StoreConfig `yaml:"store"`
	Desk  DeskConfig  `yaml:"desk"`

	// StorageKind selects file (default) or sqlite persistence.
	StorageKind StorageKind `yaml:"storageKind"`
	// StorageDir is the directory (file backend) or database file path
	// (sqlite backend) the Library persists to.
	StorageDir string `yaml:"storageDir"`

	// EmbeddingModelHint is passed through to the embedding provider on
	// every call, letting a multi-model provider pick a variant.
	EmbeddingModelHint string `yaml:"embeddingModelHint"`

	// LibrarianName/LibrarianPurpose seed the default Librarian identity
	// the Desk uses for extraction/summarize/optimize/reorganize.
	LibrarianName    string `yaml:"librarianName"`
	LibrarianPurpose string `yaml:"librarianPurpose"`
}

// DefaultConfig returns the documented defaults for every sub-concern.
func DefaultConfig() Config {
	return Config{
		Store:         stacks.DefaultConfig(),
		Desk:          desk.DefaultConfig(),
		StorageKind:   StorageFile,
		StorageDir:    "librarystack-data",
		LibrarianName: "default",
	}
}

// LoadConfig reads a YAML file at path and merges it tolerantly over
// DefaultConfig (unset fields keep their default).
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("library: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("library: parse config %s: %w", path, err)
	}
	return cfg, nil
}
