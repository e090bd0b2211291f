package domain

import (
	"fmt"
	"time"
)

type ExperimentStatus string

const (
	ExperimentDraft    ExperimentStatus = "draft"
	ExperimentRunning  ExperimentStatus = "running"
	ExperimentPaused   ExperimentStatus = "paused"
	ExperimentFinished ExperimentStatus = "finished"
)

// Experiment is an A/B test over offer availability.
type Experiment struct {
	ID       string           `json:"id" yaml:"id"`
	Name     string           `json:"name" yaml:"name"`
	Status   ExperimentStatus `json:"status" yaml:"status"`
	StartsAt *time.Time       `json:"starts_at,omitempty" yaml:"starts_at,omitempty"`
	EndsAt   *time.Time       `json:"ends_at,omitempty" yaml:"ends_at,omitempty"`
	Variants []Variant        `json:"variants" yaml:"variants"`
}

// Variant is one traffic branch. A replacement is expressed as the old offer
// in Suppresses and the new one in Activates.
type Variant struct {
	ID           string   `json:"id" yaml:"id"`
	ExperimentID string   `json:"experiment_id" yaml:"experiment_id"`
	Weight       int      `json:"weight" yaml:"weight"`
	Activates    []string `json:"activates,omitempty" yaml:"activates,omitempty"`
	Suppresses   []string `json:"suppresses,omitempty" yaml:"suppresses,omitempty"`
}

// Running reports whether the experiment assigns visitors at now.
func (e Experiment) Running(now time.Time) bool {
	if e.Status != ExperimentRunning {
		return false
	}
	if e.StartsAt != nil && now.Before(*e.StartsAt) {
		return false
	}
	if e.EndsAt != nil && !now.Before(*e.EndsAt) {
		return false
	}
	return true
}

func (e Experiment) Validate() error {
	if e.ID == "" {
		return Wrapf(ErrInvalidExperiment, "missing id")
	}
	if len(e.Variants) == 0 {
		return Wrapf(ErrInvalidExperiment, "experiment %s has no variants", e.ID)
	}
	seen := make(map[string]bool, len(e.Variants))
	for _, v := range e.Variants {
		if v.ID == "" {
			return Wrapf(ErrInvalidExperiment, "experiment %s has a variant without id", e.ID)
		}
		if seen[v.ID] {
			return Wrapf(ErrInvalidExperiment, "experiment %s: duplicate variant %s", e.ID, v.ID)
		}
		seen[v.ID] = true
		if v.Weight < 0 {
			return Wrapf(ErrInvalidExperiment, "experiment %s: variant %s has negative weight", e.ID, v.ID)
		}
	}
	return nil
}

// VisitorKind tells whether a visitor identity came from a signed-in user or
// from the client-persisted session.
type VisitorKind string

const (
	VisitorUser    VisitorKind = "user"
	VisitorSession VisitorKind = "session"
)

type Visitor struct {
	ID   string      `json:"id"`
	Kind VisitorKind `json:"kind"`
}

func (v Visitor) String() string { return fmt.Sprintf("%s:%s", v.Kind, v.ID) }

// Assignment binds a visitor to one variant for the lifetime of the experiment.
type Assignment struct {
	ExperimentID string    `json:"experiment_id"`
	VariantID    string    `json:"variant_id"`
	Visitor      Visitor   `json:"visitor"`
	AssignedAt   time.Time `json:"assigned_at"`
}
