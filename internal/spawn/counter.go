package spawn

import (
	"go.uber.org/zap"

	"github.com/scenesync/server/internal/core/ecs"
	"github.com/scenesync/server/internal/core/event"
	"github.com/scenesync/server/internal/patch"
)

// Texter rewrites an actor's text contents.
type Texter interface {
	SetText(ecs.ActorID, string) (patch.Patch, error)
}

// Labeler formats the counter text.
type Labeler interface {
	CounterLabel(count int) string
}

// Counter counts trigger entries on one plane and shows the total on a
// text actor.
type Counter struct {
	scene  Texter
	labels Labeler
	out    Broadcaster
	plane  ecs.ActorID
	label  ecs.ActorID
	count  int
	log    *zap.Logger
}

func NewCounter(sc Texter, labels Labeler, out Broadcaster, plane, label ecs.ActorID, log *zap.Logger) *Counter {
	return &Counter{scene: sc, labels: labels, out: out, plane: plane, label: label, log: log}
}

// Subscribe hooks the counter to trigger events on bus.
func (c *Counter) Subscribe(bus *event.Bus) {
	event.Subscribe(bus, c.OnTriggerEntered)
}

func (c *Counter) OnTriggerEntered(e event.TriggerEntered) {
	if e.Actor != c.plane {
		return
	}
	c.count++
	p, err := c.scene.SetText(c.label, c.labels.CounterLabel(c.count))
	if err != nil {
		c.log.Warn("update counter label", zap.Error(err))
		return
	}
	c.out.Broadcast(p)
}

func (c *Counter) Count() int { return c.count }
