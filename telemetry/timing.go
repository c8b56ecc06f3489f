package telemetry

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// TimingCollector records wall-clock durations in a tree: the first Start
// becomes the root, later Starts nest under the currently running timer.
type TimingCollector struct {
	mu      sync.Mutex
	root    *span
	current *span
}

type span struct {
	name     string
	start    time.Time
	end      time.Time
	parent   *span
	children []*span
}

func NewTimingCollector() *TimingCollector {
	return &TimingCollector{}
}

func (c *TimingCollector) Start(name string) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &span{name: name, start: time.Now()}
	if c.root == nil {
		c.root = s
	} else {
		s.parent = c.current
		c.current.children = append(c.current.children, s)
	}
	c.current = s
	return &spanTimer{collector: c, span: s}
}

// Report renders the timing tree:
//
//	auto run: 4.21s
//	├─ contract income: 1.10s
//	└─ sales: 3.11s
func (c *TimingCollector) Report(w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.root == nil {
		return
	}
	if c.root.end.IsZero() {
		c.root.end = time.Now()
	}
	_, _ = fmt.Fprintf(w, "%s: %s\n", c.root.name, formatDuration(c.root.end.Sub(c.root.start)))
	writeChildren(w, c.root, "")
}

func writeChildren(w io.Writer, s *span, prefix string) {
	for i, child := range s.children {
		branch, extension := "├─ ", "│  "
		if i == len(s.children)-1 {
			branch, extension = "└─ ", "   "
		}
		_, _ = fmt.Fprintf(w, "%s%s%s: %s\n", prefix, branch, child.name, formatDuration(child.end.Sub(child.start)))
		writeChildren(w, child, prefix+extension)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.0fms", float64(d)/float64(time.Millisecond))
	}
	return fmt.Sprintf("%.2fs", float64(d)/float64(time.Second))
}

type spanTimer struct {
	collector *TimingCollector
	span      *span
}

func (t *spanTimer) End() {
	t.collector.mu.Lock()
	defer t.collector.mu.Unlock()

	if t.span.end.IsZero() {
		t.span.end = time.Now()
	}
	if t.collector.current == t.span && t.span.parent != nil {
		t.collector.current = t.span.parent
	}
}

func (t *spanTimer) Child(name string) Timer {
	c := t.collector
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &span{name: name, start: time.Now(), parent: t.span}
	t.span.children = append(t.span.children, s)
	c.current = s
	return &spanTimer{collector: c, span: s}
}
