package groups

import (
	"maps"
	"sort"
	"strings"

	"brokereye/app/interfaces"
)

// ActiveFilterRegistry maps consumers (views) to the group currently filtering
// them. It shares the store lock, so no consumer ever references a missing group.
type ActiveFilterRegistry struct {
	store *Store
}

// SetActiveFilter selects name for consumer. An empty name clears the entry;
// a name that does not exist is rejected.
func (r *ActiveFilterRegistry) SetActiveFilter(consumer, name string) bool {
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return false
	}
	name = normalizeName(name)

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if name == "" {
		delete(s.active, consumer)
		return true
	}
	if _, ok := s.groups[name]; !ok {
		return false
	}
	s.active[consumer] = name
	return true
}

// GetActiveFilter returns the group selected for consumer, if any.
func (r *ActiveFilterRegistry) GetActiveFilter(consumer string) (string, bool) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.active[strings.TrimSpace(consumer)]
	return name, ok
}

// ClearActiveFilter removes any selection for consumer.
func (r *ActiveFilterRegistry) ClearActiveFilter(consumer string) {
	s := r.store
	s.mu.Lock()
	delete(s.active, strings.TrimSpace(consumer))
	s.mu.Unlock()
}

// Consumers lists consumers with an active selection, sorted.
func (r *ActiveFilterRegistry) Consumers() []string {
	s := r.store
	s.mu.RLock()
	out := make([]string, 0, len(s.active))
	for c := range s.active {
		out = append(out, c)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Snapshot returns a copy of all selections.
func (r *ActiveFilterRegistry) Snapshot() map[string]string {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.active)
}

// Restore applies saved selections, dropping those whose group no longer
// exists. It returns the number of selections applied.
func (r *ActiveFilterRegistry) Restore(saved map[string]string) int {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for consumer, name := range saved {
		consumer = strings.TrimSpace(consumer)
		name = normalizeName(name)
		if consumer == "" || name == "" {
			continue
		}
		if _, ok := s.groups[name]; !ok {
			continue
		}
		s.active[consumer] = name
		n++
	}
	return n
}

// ActiveGroup resolves the consumer's selection to the immutable group, so a
// caller can filter without holding the lock.
func (r *ActiveFilterRegistry) ActiveGroup(consumer string) (*Group, bool) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.active[strings.TrimSpace(consumer)]
	if !ok {
		return nil, false
	}
	g, ok := s.groups[name]
	return g, ok
}

// FilterByActiveGroup keeps the records whose keyField value belongs to the
// consumer's active group. With no active group the input is returned as is.
// An empty keyField uses the canonical Record.Key.
func (r *ActiveFilterRegistry) FilterByActiveGroup(records []*interfaces.Record, keyField, consumer string) []*interfaces.Record {
	g, ok := r.ActiveGroup(consumer)
	if !ok {
		return records
	}
	out := make([]*interfaces.Record, 0, len(records))
	for _, rec := range records {
		if rec == nil {
			continue
		}
		var key any = rec.Key
		if keyField != "" {
			v, present := rec.Get(keyField)
			if !present {
				continue
			}
			key = v
		}
		if g.IsMember(key) {
			out = append(out, rec)
		}
	}
	return out
}
