package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Victor-armando18/offer-engine/internal/domain"
	"github.com/Victor-armando18/offer-engine/internal/infrastructure/yaml"
)

// CatalogDocument is the on-disk catalog: offers plus the experiments over them.
type CatalogDocument struct {
	Version     string
	Description string
	Offers      []domain.Offer
	Experiments []domain.Experiment
}

type jsonCatalog struct {
	Version     string              `json:"version"`
	Description string              `json:"description,omitempty"`
	Offers      json.RawMessage     `json:"offers"`
	Experiments []domain.Experiment `json:"experiments,omitempty"`
}

// FileCatalog serves offers and experiments from a JSON or YAML file, chosen
// by extension. The file is re-read on every fetch.
type FileCatalog struct {
	Path   string
	Logger *slog.Logger
}

func NewFileCatalog(path string, logger *slog.Logger) *FileCatalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileCatalog{Path: path, Logger: logger}
}

// Load reads the whole document. Malformed offers are skipped with a warning.
func (c *FileCatalog) Load(ctx context.Context) (*CatalogDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		doc     *CatalogDocument
		skipped []error
		err     error
	)
	switch strings.ToLower(filepath.Ext(c.Path)) {
	case ".yaml", ".yml":
		var y *yaml.Catalog
		y, skipped, err = yaml.LoadCatalog(c.Path)
		if err == nil {
			doc = &CatalogDocument{Version: y.Version, Description: y.Description, Offers: y.Offers, Experiments: y.Experiments}
		}
	default:
		doc, skipped, err = loadJSONCatalog(c.Path)
	}
	if err != nil {
		return nil, err
	}
	for _, s := range skipped {
		c.Logger.Warn("skipping malformed offer", "path", c.Path, "error", s)
	}
	return doc, nil
}

func (c *FileCatalog) FetchActiveOffers(ctx context.Context) ([]domain.Offer, error) {
	doc, err := c.Load(ctx)
	if err != nil {
		return nil, err
	}
	return ActiveByPriority(doc.Offers), nil
}

func (c *FileCatalog) FetchRunningExperiments(ctx context.Context) ([]domain.Experiment, error) {
	doc, err := c.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Experiment, 0, len(doc.Experiments))
	for _, e := range doc.Experiments {
		if e.Status != domain.ExperimentRunning {
			continue
		}
		if err := e.Validate(); err != nil {
			c.Logger.Warn("skipping malformed experiment", "path", c.Path, "error", err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func loadJSONCatalog(path string) (*CatalogDocument, []error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}
	var raw jsonCatalog
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, domain.Wrap(domain.ErrCatalogDecode, err)
	}
	doc := &CatalogDocument{Version: raw.Version, Description: raw.Description, Experiments: raw.Experiments}
	if len(raw.Offers) == 0 {
		return doc, nil, nil
	}
	offers, skipped, err := domain.DecodeOffersJSON(raw.Offers)
	if err != nil {
		return nil, nil, err
	}
	doc.Offers = offers
	return doc, skipped, nil
}

// ActiveByPriority keeps active offers ordered by priority descending, then id.
func ActiveByPriority(offers []domain.Offer) []domain.Offer {
	out := make([]domain.Offer, 0, len(offers))
	for _, o := range offers {
		if o.Status == domain.OfferActive {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}
