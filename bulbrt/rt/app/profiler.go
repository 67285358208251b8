package app

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	ScopeRecalc   = "recalc"
	ScopeRerender = "rerender"
)

// Profiler keeps the duration of the last run of each named scope, how
// often each scope ran and a set of counters.
type Profiler struct {
	Scopes     map[string]time.Duration
	Runs       map[string]int
	StartTimes map[string]time.Time
	Counts     map[string]int
	Order      []string

	now func() time.Time
}

func NewProfiler() *Profiler {
	return &Profiler{
		Scopes:     make(map[string]time.Duration),
		Runs:       make(map[string]int),
		StartTimes: make(map[string]time.Time),
		Counts:     make(map[string]int),
		now:        time.Now,
	}
}

func (p *Profiler) BeginScope(name string) {
	p.StartTimes[name] = p.now()
	for _, n := range p.Order {
		if n == name {
			return
		}
	}
	p.Order = append(p.Order, name)
}

func (p *Profiler) EndScope(name string) time.Duration {
	start, ok := p.StartTimes[name]
	if !ok {
		return 0
	}
	d := p.now().Sub(start)
	p.Scopes[name] = d
	p.Runs[name]++
	delete(p.StartTimes, name)
	return d
}

func (p *Profiler) SetCount(name string, count int) {
	p.Counts[name] = count
}

// Milliseconds formats the last duration of a scope the way the stats
// labels show it, "---.---" before the first run.
func (p *Profiler) Milliseconds(name string) string {
	d, ok := p.Scopes[name]
	if !ok {
		return "---.---"
	}
	return fmt.Sprintf("%.3f", float64(d.Microseconds())/1000.0)
}

func (p *Profiler) String() string {
	var sb strings.Builder

	sb.WriteString("Timings:\n")
	for _, name := range p.Order {
		fmt.Fprintf(&sb, "  %-15s: %s ms (%d runs)\n", name, p.Milliseconds(name), p.Runs[name])
	}

	keys := make([]string, 0, len(p.Counts))
	for k := range p.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sb.WriteString("\nStats:\n")
	for _, k := range keys {
		fmt.Fprintf(&sb, "  %-15s: %d\n", k, p.Counts[k])
	}
	return sb.String()
}
