package catalog

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ILLUVRSE/resource-selector/internal/models"
)

type catalogFile struct {
	Models []models.ResourceDescriptor `yaml:"models"`
}

// LoadFile reads a YAML catalog bootstrap file.
func LoadFile(path string) ([]models.ResourceDescriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a catalog document and rejects invalid or duplicate entries.
func Decode(r io.Reader) ([]models.ResourceDescriptor, error) {
	var doc catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	seen := make(map[string]struct{}, len(doc.Models))
	for i, d := range doc.Models {
		if err := validateDescriptor(d); err != nil {
			return nil, fmt.Errorf("models[%d]: %w", i, err)
		}
		if _, dup := seen[d.ID]; dup {
			return nil, fmt.Errorf("models[%d]: %w: duplicate id %q", i, ErrInvalidDescriptor, d.ID)
		}
		seen[d.ID] = struct{}{}
	}
	return doc.Models, nil
}
