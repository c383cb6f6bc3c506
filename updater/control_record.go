package updater

import (
	"os"

	"github.com/goccy/go-yaml"
)

// controlRecord is the serialized handoff an Updater writes to disk before
// spawning its cleanup_at_exit helper process. The child reads it back to
// reconstruct just enough state to run one cleanup pass without needing
// the parent's in-memory VersionFinder or PrivilegedProxy.
type controlRecord struct {
	Appdir           string `yaml:"appdir"`
	AppName          string `yaml:"app_name"`
	ActiveVersion    string `yaml:"active_version,omitempty"`
	FinderDescriptor string `yaml:"finder_descriptor,omitempty"`
}

func writeControlRecord(path string, rec controlRecord) error {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func readControlRecord(path string) (controlRecord, error) {
	var rec controlRecord
	data, err := os.ReadFile(path)
	if err != nil {
		return rec, err
	}
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return rec, err
	}
	return rec, nil
}
