package corpus

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownTrait      = errors.New("unknown trait")
	ErrInvalidThresholds = errors.New("high threshold must exceed medium threshold")
)

// Thresholds are the lowest scores of the medium and high classes
type Thresholds struct {
	Medium float64 `yaml:"medium"`
	High   float64 `yaml:"high"`
}

// Class maps a score to 0 (low), 1 (medium) or 2 (high)
func (t Thresholds) Class(score float64) int {
	switch {
	case score < t.Medium:
		return 0
	case score < t.High:
		return 1
	default:
		return 2
	}
}

// Trait is one questionnaire scale and the thresholds that bucket its scores
type Trait struct {
	Name       string     `yaml:"name"`
	Column     string     `yaml:"column"`
	Thresholds Thresholds `yaml:",inline"`
	// GenderThresholds overrides Thresholds for respondents of a given gender
	GenderThresholds map[int]Thresholds `yaml:"gender,omitempty"`
}

// Label buckets score. gender is ignored unless the trait has bounds for it.
func (t Trait) Label(score float64, gender int) int {
	if th, ok := t.GenderThresholds[gender]; ok {
		return th.Class(score)
	}
	return t.Thresholds.Class(score)
}

func (t Trait) validate() error {
	if t.Name == "" || t.Column == "" {
		return fmt.Errorf("trait needs a name and a column: %+v", t)
	}
	if t.Thresholds.High <= t.Thresholds.Medium {
		return fmt.Errorf("%w: trait %s", ErrInvalidThresholds, t.Name)
	}
	for g, th := range t.GenderThresholds {
		if th.High <= th.Medium {
			return fmt.Errorf("%w: trait %s, gender %d", ErrInvalidThresholds, t.Name, g)
		}
	}
	return nil
}

// DefaultTraits returns the nine psychological defense scales of the
// questionnaire the corpus was labelled with.
func DefaultTraits() []Trait {
	return []Trait{
		{Name: "denial", Column: "Отриц.", Thresholds: Thresholds{25, 46}},
		{Name: "repression", Column: "Вытесн.", Thresholds: Thresholds{20, 41}},
		{Name: "regression", Column: "Регрессия", Thresholds: Thresholds{25, 46}},
		{Name: "compensation", Column: "Компенсац.", Thresholds: Thresholds{20, 41}},
		{Name: "projection", Column: "Проекц.", Thresholds: Thresholds{50, 71}},
		{Name: "displacement", Column: "Замещ.", Thresholds: Thresholds{20, 41}},
		{Name: "rationalization", Column: "Рационализац.", Thresholds: Thresholds{40, 61}},
		{
			Name:             "reaction_formation",
			Column:           "Гиперкомпенсац.",
			Thresholds:       Thresholds{11, 31},
			GenderThresholds: map[int]Thresholds{0: {30, 51}},
		},
		{Name: "overall", Column: "Общ. Ур.", Thresholds: Thresholds{30, 51}},
	}
}

type traitsFile struct {
	Traits []Trait `yaml:"traits"`
}

// LoadTraits reads trait definitions from a YAML file of the form
//
//	traits:
//	  - name: denial
//	    column: Отриц.
//	    medium: 25
//	    high: 46
//
// and merges them over DefaultTraits: a trait with a known name replaces the
// default, any other is appended.
func LoadTraits(path string) ([]Trait, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read traits file: %w", err)
	}

	var file traitsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse traits file: %w", err)
	}

	traits := DefaultTraits()
	position := make(map[string]int, len(traits))
	for i, t := range traits {
		position[t.Name] = i
	}

	for _, t := range file.Traits {
		if err := t.validate(); err != nil {
			return nil, err
		}
		if i, ok := position[t.Name]; ok {
			traits[i] = t
			continue
		}
		position[t.Name] = len(traits)
		traits = append(traits, t)
	}
	return traits, nil
}

// SelectTraits keeps the named traits in the order given. No names keeps all.
func SelectTraits(traits []Trait, names []string) ([]Trait, error) {
	if len(names) == 0 {
		return traits, nil
	}

	byName := make(map[string]Trait, len(traits))
	for _, t := range traits {
		byName[t.Name] = t
	}

	selected := make([]Trait, 0, len(names))
	for _, name := range names {
		t, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTrait, name)
		}
		selected = append(selected, t)
	}
	return selected, nil
}
