package generator

import "time"

// Statistics summarizes generator activity since creation or the last reset.
type Statistics struct {
	Count       int
	Failures    int
	TotalTime   time.Duration
	AverageTime time.Duration
}

func (g *Generator) record(d time.Duration, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !ok {
		g.stats.Failures++
		return
	}
	g.stats.Count++
	g.stats.TotalTime += d
}

// Statistics returns a snapshot of the running counters.
func (g *Generator) Statistics() Statistics {
	g.mu.Lock()
	s := g.stats
	g.mu.Unlock()

	if s.Count > 0 {
		s.AverageTime = s.TotalTime / time.Duration(s.Count)
	}
	return s
}

// ResetStatistics zeroes the counters.
func (g *Generator) ResetStatistics() {
	g.mu.Lock()
	g.stats = Statistics{}
	g.mu.Unlock()
}
