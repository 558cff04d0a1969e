package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/warydiaz/json-ingestion-platform/internal/models"
)

// Dataset configuration errors.
var (
	ErrDatasetConfig   = errors.New("dataset configuration")
	ErrDatasetNotFound = errors.New("dataset not found")
)

// datasetsFile is the on-disk layout. JSON files are accepted too, since
// yaml.v3 parses JSON documents.
type datasetsFile struct {
	Datasets []models.DatasetDescriptor `yaml:"datasets"`
}

// DatasetProvider serves dataset descriptors from a file. The file is read on
// first use and cached until Reload. Safe for concurrent use.
type DatasetProvider struct {
	path string

	mu       sync.RWMutex
	datasets []models.DatasetDescriptor
	loaded   bool
}

// NewDatasetProvider creates a provider for the datasets file at path.
func NewDatasetProvider(path string) *DatasetProvider {
	return &DatasetProvider{path: path}
}

// Path returns the datasets file path.
func (p *DatasetProvider) Path() string {
	return p.path
}

// List returns every configured dataset in file order.
func (p *DatasetProvider) List() ([]models.DatasetDescriptor, error) {
	p.mu.RLock()
	if p.loaded {
		out := append([]models.DatasetDescriptor(nil), p.datasets...)
		p.mu.RUnlock()
		return out, nil
	}
	p.mu.RUnlock()
	return p.Reload()
}

// Get returns one dataset by ID.
func (p *DatasetProvider) Get(datasetID string) (models.DatasetDescriptor, error) {
	datasets, err := p.List()
	if err != nil {
		return models.DatasetDescriptor{}, err
	}
	for _, d := range datasets {
		if d.DatasetID == datasetID {
			return d, nil
		}
	}
	return models.DatasetDescriptor{}, fmt.Errorf("%w: %s", ErrDatasetNotFound, datasetID)
}

// Reload re-reads the file. On failure the previous cache is kept.
func (p *DatasetProvider) Reload() ([]models.DatasetDescriptor, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrDatasetConfig, p.path, err)
	}
	datasets, err := ParseDatasets(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDatasetConfig, p.path, err)
	}

	p.mu.Lock()
	p.datasets = datasets
	p.loaded = true
	p.mu.Unlock()

	return append([]models.DatasetDescriptor(nil), datasets...), nil
}

// ParseDatasets decodes and validates a datasets document.
func ParseDatasets(data []byte) ([]models.DatasetDescriptor, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file datasetsFile
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New(`file must contain a "datasets" list`)
		}
		return nil, fmt.Errorf("decode: %w", err)
	}
	if file.Datasets == nil {
		return nil, errors.New(`file must contain a "datasets" list`)
	}

	seen := make(map[string]struct{}, len(file.Datasets))
	for _, d := range file.Datasets {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[d.DatasetID]; dup {
			return nil, fmt.Errorf("duplicate dataset id %q", d.DatasetID)
		}
		seen[d.DatasetID] = struct{}{}
	}
	return file.Datasets, nil
}
