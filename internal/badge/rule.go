// Package badge compiles badge unlock rules into predicates over a user's
// gamification stats.
package badge

import (
	"encoding/json"
	"fmt"

	"github.com/dukerupert/freelancequest/internal/cadence"
	"github.com/dukerupert/freelancequest/internal/model"
)

// Rule kinds.
const (
	KindLevel             = "level"
	KindXP                = "xp"
	KindMissionsCompleted = "missions_completed"
	KindMission           = "mission"
	KindEventCount        = "event_count"
)

// Rule is the declarative form of a badge predicate, as stored in the catalog
// file and in badges.rule.
type Rule struct {
	Kind    string `json:"kind" yaml:"kind"`
	Min     int64  `json:"min" yaml:"min"`
	Event   string `json:"event,omitempty" yaml:"event,omitempty"`
	Mission string `json:"mission,omitempty" yaml:"mission,omitempty"`
	Cadence string `json:"cadence,omitempty" yaml:"cadence,omitempty"`
}

// Predicate reports whether a badge should be unlocked for the given stats.
type Predicate func(model.Stats) bool

// Compile validates r and returns its predicate.
func (r Rule) Compile() (Predicate, error) {
	if r.Min < 1 {
		return nil, fmt.Errorf("rule %q: min must be positive", r.Kind)
	}

	switch r.Kind {
	case KindLevel:
		return func(s model.Stats) bool { return int64(s.Level) >= r.Min }, nil
	case KindXP:
		return func(s model.Stats) bool { return s.XP >= r.Min }, nil
	case KindMissionsCompleted:
		if r.Cadence == "" {
			return func(s model.Stats) bool { return int64(s.MissionsCompleted) >= r.Min }, nil
		}
		if !cadence.Cadence(r.Cadence).Valid() {
			return nil, fmt.Errorf("rule %q: unknown cadence %q", r.Kind, r.Cadence)
		}
		return func(s model.Stats) bool { return int64(s.CompletedByCadence[r.Cadence]) >= r.Min }, nil
	case KindMission:
		if r.Mission == "" {
			return nil, fmt.Errorf("rule %q: mission code is required", r.Kind)
		}
		return func(s model.Stats) bool { return int64(s.CompletedByMission[r.Mission]) >= r.Min }, nil
	case KindEventCount:
		if r.Event == "" {
			return nil, fmt.Errorf("rule %q: event type is required", r.Kind)
		}
		return func(s model.Stats) bool { return int64(s.EventCounts[r.Event]) >= r.Min }, nil
	}
	return nil, fmt.Errorf("unknown rule kind %q", r.Kind)
}

// Encode returns the JSON form stored alongside the badge row.
func (r Rule) Encode() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode rule: %w", err)
	}
	return string(b), nil
}

// Decode parses a stored rule.
func Decode(raw string) (Rule, error) {
	var r Rule
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Rule{}, fmt.Errorf("decode rule: %w", err)
	}
	return r, nil
}
