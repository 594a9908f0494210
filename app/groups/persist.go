package groups

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FilePersister keeps the group list in a local file. A .json path holds a
// JSON array; any other extension holds the same schema as YAML.
type FilePersister struct {
	Path string
}

// NewFilePersister returns a persister for path.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{Path: path}
}

func (p *FilePersister) isJSON() bool {
	return strings.EqualFold(filepath.Ext(p.Path), ".json")
}

// Load reads the stored groups. A missing file is an empty list, not an error.
func (p *FilePersister) Load(_ context.Context) ([]StoredGroup, error) {
	b, err := os.ReadFile(p.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read group store: %w", err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, nil
	}

	var out []StoredGroup
	if p.isJSON() {
		err = json.Unmarshal(b, &out)
	} else {
		err = yaml.Unmarshal(b, &out)
	}
	if err != nil {
		return nil, fmt.Errorf("parse group store %s: %w", p.Path, err)
	}
	return out, nil
}

// Save writes the list atomically through a temp file in the same directory.
func (p *FilePersister) Save(_ context.Context, groups []StoredGroup) error {
	if groups == nil {
		groups = []StoredGroup{}
	}
	var (
		b   []byte
		err error
	)
	if p.isJSON() {
		b, err = json.MarshalIndent(groups, "", "  ")
	} else {
		b, err = yaml.Marshal(groups)
	}
	if err != nil {
		return fmt.Errorf("marshal groups: %w", err)
	}

	dir := filepath.Dir(p.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create group store dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".groups-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, p.Path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace group store: %w", err)
	}
	return nil
}
