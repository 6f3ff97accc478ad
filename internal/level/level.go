// Package level maps cumulative experience to a level.
//
// Level is always derived from xp through a Table, never accumulated on its
// own, so recomputing from the same xp yields the same level.
package level

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DefaultMaxLevel bounds the default doubling curve.
const DefaultMaxLevel = 50

// Table holds the cumulative xp required to reach each level: Table[0] is
// level 1 and must be 0. Thresholds are strictly increasing.
type Table []int64

// Doubling builds a curve where the xp needed for the next level starts at
// base and doubles every level: 0, base, 3*base, 7*base, ...
func Doubling(base int64, maxLevel int) Table {
	if maxLevel < 1 {
		maxLevel = 1
	}
	t := make(Table, maxLevel)
	step := base
	for i := 1; i < maxLevel; i++ {
		t[i] = t[i-1] + step
		step *= 2
	}
	return t
}

// Default returns the doubling curve with a base of 100 xp.
func Default() Table {
	return Doubling(100, DefaultMaxLevel)
}

// Parse reads a comma separated threshold list such as "0,100,300,700".
// An empty string yields the default curve.
func Parse(s string) (Table, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Default(), nil
	}

	parts := strings.Split(s, ",")
	t := make(Table, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse threshold %q: %w", p, err)
		}
		t = append(t, v)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks that the table starts at 0 and strictly increases.
func (t Table) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("level table is empty")
	}
	if t[0] != 0 {
		return fmt.Errorf("level 1 threshold must be 0, got %d", t[0])
	}
	for i := 1; i < len(t); i++ {
		if t[i] <= t[i-1] {
			return fmt.Errorf("threshold for level %d (%d) must exceed level %d (%d)", i+1, t[i], i, t[i-1])
		}
	}
	return nil
}

// Level returns the level reached with xp. Negative xp is level 1.
func (t Table) Level(xp int64) int {
	if len(t) == 0 {
		return 1
	}
	// Number of thresholds <= xp.
	n := sort.Search(len(t), func(i int) bool { return t[i] > xp })
	if n < 1 {
		return 1
	}
	return n
}

// Threshold returns the cumulative xp required for lvl. ok is false when lvl
// is outside the table.
func (t Table) Threshold(lvl int) (xp int64, ok bool) {
	if lvl < 1 || lvl > len(t) {
		return 0, false
	}
	return t[lvl-1], true
}

// MaxLevel is the highest reachable level.
func (t Table) MaxLevel() int {
	return len(t)
}
