package timer

import "time"

// Group collects handles so a feature can cancel all of its timers at once
// (scene teardown) without touching timers owned by other features.
type Group struct {
	svc     *Service
	handles []*Handle
}

func (s *Service) NewGroup() *Group {
	return &Group{svc: s}
}

func (g *Group) After(d time.Duration, fn func()) *Handle {
	h := g.svc.After(d, fn)
	g.track(h)
	return h
}

func (g *Group) Every(d time.Duration, fn func()) *Handle {
	h := g.svc.Every(d, fn)
	g.track(h)
	return h
}

// track drops finished handles while appending so long-lived groups with
// many one-shot timers stay small.
func (g *Group) track(h *Handle) {
	live := g.handles[:0]
	for _, old := range g.handles {
		if old.Active() {
			live = append(live, old)
		}
	}
	g.handles = append(live, h)
}

// Active returns the number of handles in the group that can still fire.
func (g *Group) Active() int {
	n := 0
	for _, h := range g.handles {
		if h.Active() {
			n++
		}
	}
	return n
}

// Cancel cancels every pending timer in the group and returns how many were
// still pending.
func (g *Group) Cancel() int {
	n := 0
	for _, h := range g.handles {
		if h.Cancel() {
			n++
		}
	}
	g.handles = g.handles[:0]
	return n
}
