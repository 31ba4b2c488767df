package interaction

import (
	"fmt"
	"math"
)

// Point is a touch coordinate in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ScreenExtent is the touch surface size in pixels at the time of the event.
type ScreenExtent struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (e ScreenExtent) mustBeValid() {
	if !(e.Width > 0) || !(e.Height > 0) {
		panic(fmt.Sprintf("interaction: screen extent must be positive, got %gx%g", e.Width, e.Height))
	}
}

// ZoneOf maps (x, y) on a width x height surface to its zone. The surface is
// split at width/2 and into three equal bands; each interval includes its
// lower bound. width and height must be positive.
func ZoneOf(x, y, width, height float64) Zone {
	ScreenExtent{Width: width, Height: height}.mustBeValid()

	left := x < width/2
	switch {
	case y < height/3:
		if left {
			return BackLeft
		}
		return BackRight
	case y < 2*height/3:
		if left {
			return TopLeft
		}
		return TopRight
	default:
		if left {
			return FrontLeft
		}
		return FrontRight
	}
}

// Classifier turns touch primitives into interactions. It holds no state.
type Classifier struct{}

// OnFling classifies a fling from start to end. Deltas are normalized by the
// extent so that the dominant axis is judged relative to the screen shape.
func (Classifier) OnFling(start, end Point, ext ScreenExtent) Interaction {
	ext.mustBeValid()

	dx := (end.X - start.X) / ext.Width
	dy := (end.Y - start.Y) / ext.Height

	if math.Abs(dy) > math.Abs(dx) {
		if dy < 0 {
			return FlingUp
		}
		return FlingDown
	}
	if dx < 0 {
		return FlingLeft
	}
	return FlingRight
}

// OnSingleTap classifies a single tap at p.
func (Classifier) OnSingleTap(p Point, ext ScreenExtent) Interaction {
	return SingleTap(ZoneOf(p.X, p.Y, ext.Width, ext.Height))
}

// OnDoubleTap classifies a double tap at p.
func (Classifier) OnDoubleTap(p Point, ext ScreenExtent) Interaction {
	return DoubleTap(ZoneOf(p.X, p.Y, ext.Width, ext.Height))
}

// OnLongPress classifies a long press at p.
func (Classifier) OnLongPress(p Point, ext ScreenExtent) Interaction {
	return LongPress(ZoneOf(p.X, p.Y, ext.Width, ext.Height))
}
