// Package experiment assigns visitors to experiment variants and applies the
// variants' offer overrides to the catalog.
package experiment

import (
	"hash/fnv"
	"sort"
	"time"

	"github.com/Victor-armando18/offer-engine/internal/domain"
)

// Bucket hashes (experiment, visitor) to a stable 64-bit value. The same pair
// always lands in the same bucket, so assignment never needs a storage read.
func Bucket(experimentID, visitorID string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(experimentID))
	h.Write([]byte{0})
	h.Write([]byte(visitorID))
	return h.Sum64()
}

// PickVariant maps a bucket onto the cumulative weight ranges of variants.
func PickVariant(variants []domain.Variant, bucket uint64) (domain.Variant, bool) {
	var total uint64
	for _, v := range variants {
		if v.Weight > 0 {
			total += uint64(v.Weight)
		}
	}
	if total == 0 {
		return domain.Variant{}, false
	}
	point := bucket % total
	var upper uint64
	for _, v := range variants {
		if v.Weight <= 0 {
			continue
		}
		upper += uint64(v.Weight)
		if point < upper {
			return v, true
		}
	}
	return domain.Variant{}, false
}

type Assigner struct{}

func NewAssigner() *Assigner { return &Assigner{} }

// Assign resolves the visitor's variant. Experiments that are not running at
// now, or have no weighted variant, leave the visitor unassigned.
func (a *Assigner) Assign(exp domain.Experiment, visitor domain.Visitor, now time.Time) (domain.Assignment, bool) {
	if visitor.ID == "" || !exp.Running(now) || exp.Validate() != nil {
		return domain.Assignment{}, false
	}
	v, ok := PickVariant(exp.Variants, Bucket(exp.ID, visitor.ID))
	if !ok {
		return domain.Assignment{}, false
	}
	return domain.Assignment{
		ExperimentID: exp.ID,
		VariantID:    v.ID,
		Visitor:      visitor,
		AssignedAt:   now,
	}, true
}

// AssignAll returns the visitor's assignments ordered by experiment id.
func (a *Assigner) AssignAll(exps []domain.Experiment, visitor domain.Visitor, now time.Time) []domain.Assignment {
	var out []domain.Assignment
	for _, e := range exps {
		if as, ok := a.Assign(e, visitor, now); ok {
			out = append(out, as)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExperimentID < out[j].ExperimentID })
	return out
}

// ApplyVariants builds the offer set that reaches condition matching. The base
// set is every offer not flagged experiment-only; activations from assigned
// variants are unioned in first, then suppressions are subtracted, so a
// suppression wins over an activation of the same offer.
func ApplyVariants(catalog []domain.Offer, exps []domain.Experiment, assignments []domain.Assignment) []domain.Offer {
	byID := make(map[string]domain.Offer, len(catalog))
	for _, o := range catalog {
		byID[o.ID] = o
	}

	include := map[string]bool{}
	for _, o := range catalog {
		if !o.ExperimentOnly {
			include[o.ID] = true
		}
	}

	variants := variantIndex(exps)
	var suppressed []string
	for _, as := range assignments {
		v, ok := variants[as.ExperimentID+"\x00"+as.VariantID]
		if !ok {
			continue
		}
		for _, id := range v.Activates {
			if _, known := byID[id]; known {
				include[id] = true
			}
		}
		suppressed = append(suppressed, v.Suppresses...)
	}
	for _, id := range suppressed {
		delete(include, id)
	}

	out := make([]domain.Offer, 0, len(include))
	for _, o := range catalog {
		if include[o.ID] {
			out = append(out, o)
			delete(include, o.ID)
		}
	}
	return out
}

func variantIndex(exps []domain.Experiment) map[string]domain.Variant {
	idx := map[string]domain.Variant{}
	for _, e := range exps {
		for _, v := range e.Variants {
			idx[e.ID+"\x00"+v.ID] = v
		}
	}
	return idx
}
