package domain

import (
	"fmt"
	"math"
)

// DefaultDominanceTolerance is the |climate-human| band labelled Mixed.
const DefaultDominanceTolerance = 0.05

// Dominance is the categorical attribution of a cell. The numeric codes are
// the values written to the dominance grid; 0 is reserved for undefined.
type Dominance uint8

// Dominance codes.
const (
	DominanceUndefined Dominance = 0
	ClimateDominated   Dominance = 1
	HumanDominated     Dominance = 2
	Mixed              Dominance = 3
)

// String returns the label used in logs and JSON.
func (d Dominance) String() string {
	switch d {
	case ClimateDominated:
		return "climate-dominated"
	case HumanDominated:
		return "human-dominated"
	case Mixed:
		return "mixed"
	default:
		return "undefined"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d Dominance) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Group is the driver family used by the dominance rule.
type Group string

// Driver groups.
const (
	GroupClimate Group = "climate"
	GroupHuman   Group = "human"
)

// ParseGroup validates a group name.
func ParseGroup(s string) (Group, error) {
	switch Group(s) {
	case GroupClimate, GroupHuman:
		return Group(s), nil
	default:
		return "", fmt.Errorf("%w: unknown driver group %q (use %q or %q)", ErrInvalidConfig, s, GroupClimate, GroupHuman)
	}
}

// Partition assigns each driver position to a group. It is aligned with the
// driver order of the importance vector.
type Partition []Group

// Scores sums importances per group. NaN entries are skipped, so a partly
// undefined vector is scored on its defined drivers instead of producing NaN
// sums. Attribution only yields vectors that are all NaN or all finite.
func (p Partition) Scores(importance []float64) (climate, human float64) {
	for i, v := range importance {
		if i >= len(p) || math.IsNaN(v) {
			continue
		}
		switch p[i] {
		case GroupClimate:
			climate += v
		case GroupHuman:
			human += v
		}
	}
	return climate, human
}

// Classifier labels importance vectors.
type Classifier struct {
	Partition Partition
	Tolerance float64
}

// Classify applies the dominance rule:
//  1. all entries undefined -> DominanceUndefined
//  2. |climate - human| <= Tolerance -> Mixed
//  3. climate > human -> ClimateDominated, else HumanDominated
func (c Classifier) Classify(importance []float64) Dominance {
	if allNaN(importance) {
		return DominanceUndefined
	}
	climate, human := c.Partition.Scores(importance)
	if math.Abs(climate-human) <= c.Tolerance {
		return Mixed
	}
	if climate > human {
		return ClimateDominated
	}
	return HumanDominated
}

func allNaN(v []float64) bool {
	for _, x := range v {
		if !math.IsNaN(x) {
			return false
		}
	}
	return true
}
