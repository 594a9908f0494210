package groups

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"brokereye/app/interfaces"
)

// ErrNotFound is returned when a named group does not exist.
var ErrNotFound = errors.New("group not found")

// MembershipKind discriminates how a group decides membership.
type MembershipKind int

const (
	// KindManual groups hold an explicit set of ids.
	KindManual MembershipKind = iota
	// KindRange groups cover an inclusive numeric id span evaluated on demand.
	KindRange
)

// String returns the string representation of MembershipKind
func (k MembershipKind) String() string {
	switch k {
	case KindRange:
		return "range"
	default:
		return "manual"
	}
}

// Range is an inclusive id span. From <= To always holds for stored groups.
type Range struct {
	From int64 `json:"from" yaml:"from"`
	To   int64 `json:"to" yaml:"to"`
}

// Contains reports whether n falls inside the span.
func (r Range) Contains(n float64) bool {
	return float64(r.From) <= n && n <= float64(r.To)
}

// Group is an immutable snapshot of a named login group.
type Group struct {
	Name      string
	Kind      MembershipKind
	IDs       []string // manual ids in first-seen order
	Range     Range    // set when Kind == KindRange
	CreatedAt time.Time
	UpdatedAt time.Time
	Revision  uint64

	idSet map[string]struct{}
}

// IsMember evaluates membership for a raw or canonical key.
// Range groups cast the key to a number; manual groups compare canonical keys,
// so "7", 7 and 7.0 all match an id stored as "7".
func (g *Group) IsMember(key any) bool {
	if g == nil {
		return false
	}
	switch g.Kind {
	case KindRange:
		n, ok := interfaces.ToNumber(key)
		if !ok {
			return false
		}
		return g.Range.Contains(n)
	default:
		k := interfaces.NormalizeKey(key)
		if k == "" {
			return false
		}
		_, ok := g.idSet[k]
		return ok
	}
}

// CacheKey identifies this exact version of the group's membership.
func (g *Group) CacheKey() string {
	if g == nil {
		return "none"
	}
	return fmt.Sprintf("%s@%d", g.Name, g.Revision)
}

// Describe renders the membership for listings.
func (g *Group) Describe() string {
	if g.Kind == KindRange {
		return fmt.Sprintf("range %d..%d", g.Range.From, g.Range.To)
	}
	return fmt.Sprintf("%d ids", len(g.IDs))
}

// normalizeIDs canonicalizes and deduplicates ids, keeping first-seen order.
// Blank ids are dropped.
func normalizeIDs(ids []string) ([]string, map[string]struct{}) {
	out := make([]string, 0, len(ids))
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		k := interfaces.NormalizeKey(id)
		if k == "" {
			continue
		}
		if _, dup := set[k]; dup {
			continue
		}
		set[k] = struct{}{}
		out = append(out, k)
	}
	return out, set
}

func normalizeName(name string) string {
	return strings.TrimSpace(name)
}

// StoredGroup is the persisted form of a group.
type StoredGroup struct {
	Name      string   `json:"name" yaml:"name"`
	LoginIDs  []string `json:"loginIds" yaml:"loginIds"`
	Range     *Range   `json:"range" yaml:"range"`
	CreatedAt string   `json:"createdAt" yaml:"createdAt"`
	UpdatedAt string   `json:"updatedAt" yaml:"updatedAt"`
}

func toStored(g *Group) StoredGroup {
	sg := StoredGroup{
		Name:      g.Name,
		LoginIDs:  []string{},
		CreatedAt: g.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: g.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if g.Kind == KindRange {
		r := g.Range
		sg.Range = &r
	} else {
		sg.LoginIDs = append(sg.LoginIDs, g.IDs...)
	}
	return sg
}

// fromStored validates a persisted group. Timestamps that fail to parse fall
// back to now so an edited file still loads.
func fromStored(sg StoredGroup, now time.Time) (*Group, error) {
	name := normalizeName(sg.Name)
	if name == "" {
		return nil, errors.New("empty group name")
	}
	g := &Group{
		Name:      name,
		CreatedAt: parseTime(sg.CreatedAt, now),
		UpdatedAt: parseTime(sg.UpdatedAt, now),
		Revision:  1,
	}
	if sg.Range != nil {
		if sg.Range.From > sg.Range.To {
			return nil, fmt.Errorf("group %q: range from %d > to %d", name, sg.Range.From, sg.Range.To)
		}
		g.Kind = KindRange
		g.Range = *sg.Range
		return g, nil
	}
	ids, set := normalizeIDs(sg.LoginIDs)
	if len(ids) == 0 {
		return nil, fmt.Errorf("group %q: no login ids", name)
	}
	g.Kind = KindManual
	g.IDs = ids
	g.idSet = set
	return g, nil
}

func parseTime(s string, fallback time.Time) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s)); err == nil {
		return t
	}
	return fallback
}
