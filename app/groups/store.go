package groups

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ChangeKind describes a store mutation.
type ChangeKind int

const (
	ChangeCreated ChangeKind = iota
	ChangeUpdated
	ChangeRenamed
	ChangeDeleted
	ChangeLoaded
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeCreated:
		return "created"
	case ChangeUpdated:
		return "updated"
	case ChangeRenamed:
		return "renamed"
	case ChangeDeleted:
		return "deleted"
	case ChangeLoaded:
		return "loaded"
	}
	return "unknown"
}

// ChangeEvent is delivered to OnChange listeners after a mutation commits.
type ChangeEvent struct {
	Kind    ChangeKind
	Name    string
	OldName string // set for renames
}

// Persister stores the full group list. Implementations must be safe for
// sequential use from a single goroutine; the store serializes calls.
type Persister interface {
	Load(ctx context.Context) ([]StoredGroup, error)
	Save(ctx context.Context, groups []StoredGroup) error
}

// Option configures a Store.
type Option func(*Store)

// WithPersister sets the backend used for Load and save-on-mutation.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithLogger sets the logger used for persistence warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSaveTimeout bounds each persister call.
func WithSaveTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.saveTimeout = d
		}
	}
}

// Store owns the named login groups and the active filter registry.
// Both share mu so a delete or rename and its registry cascade commit together.
type Store struct {
	mu       sync.RWMutex
	groups   map[string]*Group
	active   map[string]string // consumer -> group name
	revision uint64
	gen      uint64 // bumped with every persisted mutation

	persister   Persister
	logger      *slog.Logger
	now         func() time.Time
	saveTimeout time.Duration

	listenersMu sync.RWMutex
	listeners   []func(ChangeEvent)

	saveMu   sync.Mutex
	savedGen uint64
}

// NewStore creates an empty store. Call Load to populate it from the persister.
func NewStore(opts ...Option) *Store {
	s := &Store{
		groups:      make(map[string]*Group),
		active:      make(map[string]string),
		logger:      slog.Default(),
		now:         time.Now,
		saveTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers a listener invoked after every committed mutation.
func (s *Store) OnChange(fn func(ChangeEvent)) {
	if fn == nil {
		return
	}
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, fn)
	s.listenersMu.Unlock()
}

// Load replaces the in-memory groups with the persisted ones. A missing or
// malformed backend leaves the store empty; it never fails startup.
func (s *Store) Load(ctx context.Context) {
	var stored []StoredGroup
	if s.persister != nil {
		var err error
		stored, err = s.persister.Load(ctx)
		if err != nil {
			s.logger.Warn("group store unreadable, starting empty", "error", err)
			stored = nil
		}
	}

	now := s.now()
	loaded := make(map[string]*Group, len(stored))
	s.mu.Lock()
	for _, sg := range stored {
		g, err := fromStored(sg, now)
		if err != nil {
			s.logger.Warn("skipping invalid stored group", "error", err)
			continue
		}
		if _, dup := loaded[g.Name]; dup {
			s.logger.Warn("skipping duplicate stored group", "name", g.Name)
			continue
		}
		s.revision++
		g.Revision = s.revision
		loaded[g.Name] = g
	}
	s.groups = loaded
	for consumer, name := range s.active {
		if _, ok := loaded[name]; !ok {
			delete(s.active, consumer)
		}
	}
	s.mu.Unlock()

	s.notify(ChangeEvent{Kind: ChangeLoaded})
}

// CreateGroup adds a manual group. It returns false when the name is blank or
// taken, or when no usable id remains after normalization.
func (s *Store) CreateGroup(name string, ids []string) bool {
	name = normalizeName(name)
	if name == "" {
		return false
	}
	norm, set := normalizeIDs(ids)
	if len(norm) == 0 {
		return false
	}

	s.mu.Lock()
	if _, exists := s.groups[name]; exists {
		s.mu.Unlock()
		return false
	}
	now := s.now()
	s.revision++
	s.groups[name] = &Group{
		Name:      name,
		Kind:      KindManual,
		IDs:       norm,
		CreatedAt: now,
		UpdatedAt: now,
		Revision:  s.revision,
		idSet:     set,
	}
	gen, snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(gen, snapshot)
	s.notify(ChangeEvent{Kind: ChangeCreated, Name: name})
	return true
}

// CreateRangeGroup adds a group covering the inclusive span from..to.
func (s *Store) CreateRangeGroup(name, from, to string) bool {
	name = normalizeName(name)
	if name == "" {
		return false
	}
	rng, ok := ParseRange(from, to)
	if !ok {
		return false
	}

	s.mu.Lock()
	if _, exists := s.groups[name]; exists {
		s.mu.Unlock()
		return false
	}
	now := s.now()
	s.revision++
	s.groups[name] = &Group{
		Name:      name,
		Kind:      KindRange,
		Range:     rng,
		CreatedAt: now,
		UpdatedAt: now,
		Revision:  s.revision,
	}
	gen, snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(gen, snapshot)
	s.notify(ChangeEvent{Kind: ChangeCreated, Name: name})
	return true
}

// ParseRange parses trimmed integer bounds and requires from <= to.
func ParseRange(from, to string) (Range, bool) {
	f, err := strconv.ParseInt(strings.TrimSpace(from), 10, 64)
	if err != nil {
		return Range{}, false
	}
	t, err := strconv.ParseInt(strings.TrimSpace(to), 10, 64)
	if err != nil {
		return Range{}, false
	}
	if f > t {
		return Range{}, false
	}
	return Range{From: f, To: t}, true
}

// UpdateGroup renames and/or replaces the membership of oldName.
// ids switches the group to manual membership, rng switches it to a range;
// passing neither only renames. Registry entries follow a rename.
func (s *Store) UpdateGroup(oldName, newName string, ids []string, rng *Range) bool {
	oldName = normalizeName(oldName)
	newName = normalizeName(newName)
	if newName == "" {
		return false
	}
	if ids != nil && rng != nil {
		return false
	}
	var (
		norm []string
		set  map[string]struct{}
	)
	if ids != nil {
		norm, set = normalizeIDs(ids)
		if len(norm) == 0 {
			return false
		}
	}
	if rng != nil && rng.From > rng.To {
		return false
	}

	s.mu.Lock()
	cur, ok := s.groups[oldName]
	if !ok {
		s.mu.Unlock()
		return false
	}
	if newName != oldName {
		if _, taken := s.groups[newName]; taken {
			s.mu.Unlock()
			return false
		}
	}

	next := *cur
	next.Name = newName
	switch {
	case rng != nil:
		next.Kind = KindRange
		next.Range = *rng
		next.IDs = nil
		next.idSet = nil
	case ids != nil:
		next.Kind = KindManual
		next.Range = Range{}
		next.IDs = norm
		next.idSet = set
	}
	s.revision++
	next.Revision = s.revision
	next.UpdatedAt = s.now()

	delete(s.groups, oldName)
	s.groups[newName] = &next
	if newName != oldName {
		for consumer, name := range s.active {
			if name == oldName {
				s.active[consumer] = newName
			}
		}
	}
	gen, snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(gen, snapshot)
	ev := ChangeEvent{Kind: ChangeUpdated, Name: newName}
	if newName != oldName {
		ev.Kind = ChangeRenamed
		ev.OldName = oldName
	}
	s.notify(ev)
	return true
}

// DeleteGroup removes name and clears every registry entry pointing at it.
func (s *Store) DeleteGroup(name string) bool {
	name = normalizeName(name)
	s.mu.Lock()
	if _, ok := s.groups[name]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.groups, name)
	for consumer, active := range s.active {
		if active == name {
			delete(s.active, consumer)
		}
	}
	gen, snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(gen, snapshot)
	s.notify(ChangeEvent{Kind: ChangeDeleted, Name: name})
	return true
}

// IsMember reports whether key belongs to the named group. Unknown groups have
// no members.
func (s *Store) IsMember(name string, key any) bool {
	g := s.lookup(name)
	return g.IsMember(key)
}

// Get returns a snapshot of the named group.
func (s *Store) Get(name string) (Group, error) {
	g := s.lookup(name)
	if g == nil {
		return Group{}, ErrNotFound
	}
	return cloneGroup(g), nil
}

// Lookup returns the live immutable group for read-only membership checks.
func (s *Store) Lookup(name string) (*Group, bool) {
	g := s.lookup(name)
	return g, g != nil
}

// Groups returns snapshots of all groups sorted by name.
func (s *Store) Groups() []Group {
	s.mu.RLock()
	out := make([]Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, cloneGroup(g))
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of groups.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.groups)
}

// Registry returns the active filter registry bound to this store.
func (s *Store) Registry() *ActiveFilterRegistry {
	return &ActiveFilterRegistry{store: s}
}

func (s *Store) lookup(name string) *Group {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groups[normalizeName(name)]
}

func cloneGroup(g *Group) Group {
	c := *g
	c.IDs = slices.Clone(g.IDs)
	return c
}

// snapshotLocked must be called with mu held for writing.
func (s *Store) snapshotLocked() (uint64, []StoredGroup) {
	s.gen++
	out := make([]StoredGroup, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, toStored(g))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return s.gen, out
}

// persist writes snapshot unless a newer one has already been written.
// Failures are logged; memory stays authoritative.
func (s *Store) persist(gen uint64, snapshot []StoredGroup) {
	if s.persister == nil {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if gen <= s.savedGen {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
	defer cancel()
	if err := s.persister.Save(ctx, snapshot); err != nil {
		s.logger.Warn("failed to persist groups", "error", err, "groups", len(snapshot))
		return
	}
	s.savedGen = gen
}

func (s *Store) notify(ev ChangeEvent) {
	s.listenersMu.RLock()
	listeners := slices.Clone(s.listeners)
	s.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
}
