// Package taxonomy loads the candlestick pattern taxonomy from CSV or YAML.
package taxonomy

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/candlelens/candlelens/pkg/models"
)

// Load reads the taxonomy at path, choosing the format by file extension.
// Files without a .yaml or .yml extension are read as CSV.
func Load(path string) ([]models.Pattern, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open taxonomy: %w", err)
	}
	defer f.Close()

	var patterns []models.Pattern
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		patterns, err = ReadYAML(f)
	default:
		patterns, err = ReadCSV(f)
	}
	if err != nil {
		return nil, fmt.Errorf("read taxonomy %s: %w", path, err)
	}
	if len(patterns) == 0 {
		return nil, fmt.Errorf("taxonomy %s has no patterns", path)
	}
	return patterns, nil
}

// ReadCSV reads name,category,direction,description records. The first row
// is a header. Rows with fewer than four fields are skipped.
func ReadCSV(r io.Reader) ([]models.Pattern, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	var patterns []models.Pattern
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) < 4 {
			continue
		}
		patterns = append(patterns, models.Pattern{
			Name:        rec[0],
			Category:    rec[1],
			Direction:   rec[2],
			Description: rec[3],
		})
	}
	return patterns, nil
}

type yamlFile struct {
	Patterns []models.Pattern `yaml:"patterns"`
}

// ReadYAML reads a document with a top-level patterns list.
func ReadYAML(r io.Reader) ([]models.Pattern, error) {
	var doc yamlFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	patterns := doc.Patterns[:0]
	for _, p := range doc.Patterns {
		if p.Name == "" {
			continue
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}
