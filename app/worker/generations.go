package worker

import "sync"

// Generations tags requests per consumer so a caller can discard a result
// that was overtaken by a newer request for the same consumer.
type Generations struct {
	mu  sync.Mutex
	gen map[string]uint64
}

// NewGenerations creates an empty counter set
func NewGenerations() *Generations {
	return &Generations{gen: make(map[string]uint64)}
}

// Next starts a new generation for consumer and returns it
func (g *Generations) Next(consumer string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gen[consumer]++
	return g.gen[consumer]
}

// Current returns the latest generation issued for consumer
func (g *Generations) Current(consumer string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gen[consumer]
}

// IsCurrent reports whether gen is still the latest for consumer
func (g *Generations) IsCurrent(consumer string, gen uint64) bool {
	return gen != 0 && g.Current(consumer) == gen
}
