package scenario

import (
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/ramkumarar/planprobe/internal/capture"
	"github.com/ramkumarar/planprobe/internal/model"
)

// Mode selects how many captures each case gets.
type Mode string

const (
	// ModeSingle captures one plan per case.
	ModeSingle Mode = "single"
	// ModeBeforeAfter captures each case twice around a state transition and
	// compares the pair.
	ModeBeforeAfter Mode = "before-after"
)

// Transition names the state change between the before and after phases.
type Transition string

const (
	// TransitionAnalyze refreshes planner statistics on the suite's tables.
	TransitionAnalyze Transition = "analyze"
	// TransitionNone runs both phases with no state change in between. Useful
	// when the phases differ only by planner settings.
	TransitionNone Transition = "none"
)

// Phase describes one capture pass over all cases.
type Phase struct {
	// Condition tags the resulting captures, e.g. "stale" or "analyzed".
	Condition string `yaml:"condition" json:"condition"`
	// Settings are planner settings scoped to each capture in this phase.
	Settings map[string]string `yaml:"settings,omitempty" json:"settings,omitempty"`
	// StatsFresh records whether statistics are believed current during this
	// phase. It is declarative, never inferred.
	StatsFresh bool `yaml:"stats_fresh" json:"stats_fresh"`
}

// Suite is a declarative scenario definition, usually loaded from YAML.
type Suite struct {
	Name       string               `yaml:"name" json:"name"`
	Template   string               `yaml:"template" json:"template"`
	Mode       Mode                 `yaml:"mode,omitempty" json:"mode"`
	Tables     []string             `yaml:"tables,omitempty" json:"tables,omitempty"`
	Transition Transition           `yaml:"transition,omitempty" json:"transition,omitempty"`
	Analyze    bool                 `yaml:"analyze,omitempty" json:"analyze,omitempty"`
	Format     model.PlanFormat     `yaml:"format,omitempty" json:"format,omitempty"`
	CountRows  *bool                `yaml:"count_rows,omitempty" json:"count_rows,omitempty"`
	Before     Phase                `yaml:"before,omitempty" json:"before"`
	After      Phase                `yaml:"after,omitempty" json:"after"`
	Cases      []model.ScenarioCase `yaml:"cases" json:"cases"`
}

// LoadSuite reads and validates a suite file.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "scenario: read suite")
	}
	return ParseSuite(data)
}

// ParseSuite decodes and validates a YAML suite definition.
func ParseSuite(data []byte) (*Suite, error) {
	var suite Suite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, errors.Wrap(err, "scenario: parse suite")
	}
	if err := suite.Validate(); err != nil {
		return nil, err
	}
	return &suite, nil
}

// Validate checks the suite definition and fills defaults in place.
func (s *Suite) Validate() error {
	if s.Name == "" {
		return errors.New("scenario: suite name required")
	}
	if _, err := capture.NewTemplate(s.Template); err != nil {
		return err
	}

	switch s.Mode {
	case "":
		s.Mode = ModeBeforeAfter
	case ModeSingle, ModeBeforeAfter:
	default:
		return errors.Newf("scenario: unknown mode %q", s.Mode)
	}

	switch s.Transition {
	case "":
		if s.Mode == ModeBeforeAfter {
			s.Transition = TransitionAnalyze
		} else {
			s.Transition = TransitionNone
		}
	case TransitionAnalyze, TransitionNone:
	default:
		return errors.Newf("scenario: unknown transition %q", s.Transition)
	}

	switch s.Format {
	case "", model.FormatText, model.FormatJSON:
	default:
		return errors.Newf("scenario: unknown format %q", s.Format)
	}

	if s.Before.Condition == "" {
		s.Before.Condition = "before"
	}
	if s.After.Condition == "" {
		s.After.Condition = "after"
	}

	if len(s.Cases) == 0 {
		return errors.New("scenario: at least one case required")
	}
	seen := make(map[string]struct{}, len(s.Cases))
	for i, kase := range s.Cases {
		if kase.Label == "" {
			return errors.Newf("scenario: case %d has no label", i)
		}
		if _, dup := seen[kase.Label]; dup {
			return errors.Newf("scenario: duplicate case label %q", kase.Label)
		}
		seen[kase.Label] = struct{}{}
	}
	return nil
}

func (s *Suite) countRows(fallback bool) bool {
	if s.CountRows == nil {
		return fallback
	}
	return *s.CountRows
}
