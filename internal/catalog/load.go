package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// definitionFile is the on-disk layout of a definitions directory entry: a
// ServiceDefinition with optional name and description keys alongside it.
type definitionFile struct {
	Name              string `yaml:"name"`
	Description       string `yaml:"description"`
	ServiceDefinition `yaml:",inline"`
}

// DecodeDefinition parses a single YAML definition. fallbackName is used when
// the document has no name key.
func DecodeDefinition(data []byte, fallbackName string) (Entry, error) {
	doc := definitionFile{ServiceDefinition: DefaultDefinition()}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return Entry{}, fmt.Errorf("parse definition: %w", err)
	}

	name := strings.TrimSpace(doc.Name)
	if name == "" {
		name = fallbackName
	}
	if err := ValidateName(name); err != nil {
		return Entry{}, err
	}
	if err := doc.ServiceDefinition.Validate(); err != nil {
		return Entry{}, fmt.Errorf("definition %q: %w", name, err)
	}
	return Entry{
		Name:        name,
		Description: doc.Description,
		Definition:  doc.ServiceDefinition,
		Status:      StatusRegistered,
	}, nil
}

// LoadDefinitionsDir reads every *.yaml / *.yml file in dir. A missing
// directory yields no entries.
func LoadDefinitionsDir(dir string) ([]Entry, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read definitions dir: %w", err)
	}

	names := make([]string, 0, len(files))
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		switch filepath.Ext(f.Name()) {
		case ".yaml", ".yml":
			names = append(names, f.Name())
		}
	}
	sort.Strings(names)

	out := make([]Entry, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read definition %s: %w", name, err)
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		entry, err := DecodeDefinition(data, stem)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, entry)
	}
	return out, nil
}
