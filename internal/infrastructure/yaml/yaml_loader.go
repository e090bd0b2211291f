package yaml

import (
	"fmt"
	"os"

	"github.com/Victor-armando18/offer-engine/internal/domain"
	"gopkg.in/yaml.v3"
)

// Catalog is the YAML catalog document.
type Catalog struct {
	Version     string
	Description string
	Offers      []domain.Offer
	Experiments []domain.Experiment
}

type document struct {
	Version     string              `yaml:"version"`
	Description string              `yaml:"description"`
	Offers      []yaml.Node         `yaml:"offers"`
	Experiments []domain.Experiment `yaml:"experiments"`
}

// LoadCatalog reads a YAML catalog. Offers that fail to decode are returned
// as skipped errors instead of failing the whole file.
func LoadCatalog(path string) (*Catalog, []error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, []error, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, domain.Wrap(domain.ErrCatalogDecode, err)
	}
	offers, skipped := domain.DecodeOffersYAML(doc.Offers)
	return &Catalog{
		Version:     doc.Version,
		Description: doc.Description,
		Offers:      offers,
		Experiments: doc.Experiments,
	}, skipped, nil
}

// LoadOptions reads a YAML file holding engine caps.
func LoadOptions(path string) (domain.Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Options{}, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}
	var opts domain.Options
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return domain.Options{}, domain.Wrap(domain.ErrConfigInvalid, err)
	}
	return opts, nil
}
