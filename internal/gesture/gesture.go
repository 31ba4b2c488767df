// Package gesture turns touch events into interactions and fans them out to
// subscribers. Subscribers observe; delivery to the peripheral is the
// caller's job.
package gesture

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/tangible/internal/interaction"
	"github.com/srg/tangible/internal/ringchan"
)

// Event is one recognized touch primitive. Start is the touch point; End is
// only meaningful for flings.
type Event struct {
	Kind   interaction.Kind         `json:"kind"`
	Start  interaction.Point        `json:"start"`
	End    interaction.Point        `json:"end"`
	Extent interaction.ScreenExtent `json:"extent"`
}

// Validate reports whether the event can be classified.
func (e Event) Validate() error {
	if e.Kind == interaction.KindUnknown {
		return fmt.Errorf("gesture: unknown kind")
	}
	if !(e.Extent.Width > 0) || !(e.Extent.Height > 0) {
		return fmt.Errorf("gesture: screen extent must be positive, got %gx%g", e.Extent.Width, e.Extent.Height)
	}
	return nil
}

// Classify maps the event to its interaction. Invalid events yield
// interaction.Unknown.
func Classify(e Event) interaction.Interaction {
	if e.Validate() != nil {
		return interaction.Unknown
	}

	var c interaction.Classifier
	switch e.Kind {
	case interaction.KindFling:
		return c.OnFling(e.Start, e.End, e.Extent)
	case interaction.KindSingleTap:
		return c.OnSingleTap(e.Start, e.Extent)
	case interaction.KindDoubleTap:
		return c.OnDoubleTap(e.Start, e.Extent)
	case interaction.KindLongPress:
		return c.OnLongPress(e.Start, e.Extent)
	default:
		return interaction.Unknown
	}
}

// Dispatcher classifies events and publishes the resulting interactions to
// every subscriber. Dispatch never blocks on a slow subscriber.
type Dispatcher struct {
	logger *logrus.Logger
	bcast  *ringchan.Broadcaster[interaction.Interaction]
}

// NewDispatcher creates a Dispatcher. A nil logger gets a default one.
func NewDispatcher(logger *logrus.Logger) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	return &Dispatcher{
		logger: logger,
		bcast:  ringchan.NewBroadcaster[interaction.Interaction](),
	}
}

// Dispatch classifies e and publishes the result. Events that classify to
// Unknown are dropped and reported as such.
func (d *Dispatcher) Dispatch(e Event) interaction.Interaction {
	i := Classify(e)
	if i.IsUnknown() {
		d.logger.WithField("kind", e.Kind).Debug("Dropping unclassifiable gesture")
		return i
	}

	d.logger.WithFields(logrus.Fields{
		"kind": e.Kind,
		"code": i.Code(),
	}).Debug("Gesture classified")
	if dropped := d.bcast.Publish(i); dropped > 0 {
		d.logger.WithField("subscribers", dropped).Debug("Slow subscribers lost their oldest interaction")
	}
	return i
}

// Subscribe returns a channel of classified interactions. The channel is
// closed when ctx is done or the dispatcher is closed.
func (d *Dispatcher) Subscribe(ctx context.Context, buffer int) <-chan interaction.Interaction {
	return d.bcast.Subscribe(ctx, buffer)
}

// Close closes every subscriber channel.
func (d *Dispatcher) Close() { d.bcast.Close() }
