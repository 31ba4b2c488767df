// Package interaction defines the fixed vocabulary of touch interactions sent
// to the peripheral and the pure functions that classify raw touch
// primitives into it.
//
// Classification never fails: every point inside the screen extent maps to
// exactly one Zone, and every fling maps to one of four directions. The
// screen extent is passed to every call so that rotation never leaves a
// stale size behind.
package interaction

import (
	"fmt"
	"strings"
)

// Zone is one of the six actuator regions of the touch surface: the
// horizontal half crossed with the vertical third.
type Zone int

const (
	BackLeft Zone = iota
	TopLeft
	FrontLeft
	BackRight
	TopRight
	FrontRight
)

var zoneSuffixes = [...]string{
	BackLeft:   "BL",
	TopLeft:    "TL",
	FrontLeft:  "FL",
	BackRight:  "BR",
	TopRight:   "TR",
	FrontRight: "FR",
}

var zoneNames = [...]string{
	BackLeft:   "back_left",
	TopLeft:    "top_left",
	FrontLeft:  "front_left",
	BackRight:  "back_right",
	TopRight:   "top_right",
	FrontRight: "front_right",
}

// Zones lists every zone in declaration order.
func Zones() []Zone {
	return []Zone{BackLeft, TopLeft, FrontLeft, BackRight, TopRight, FrontRight}
}

func (z Zone) valid() bool { return z >= BackLeft && z <= FrontRight }

func (z Zone) String() string {
	if !z.valid() {
		return fmt.Sprintf("zone(%d)", int(z))
	}
	return zoneNames[z]
}

// Kind is the gesture family an Interaction belongs to.
type Kind int

const (
	KindUnknown Kind = iota
	KindFling
	KindSingleTap
	KindDoubleTap
	KindLongPress
)

var kindNames = [...]string{
	KindUnknown:   "unknown",
	KindFling:     "fling",
	KindSingleTap: "single_tap",
	KindDoubleTap: "double_tap",
	KindLongPress: "long_press",
}

func (k Kind) String() string {
	if k < KindUnknown || k > KindLongPress {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind resolves a kind name such as "double_tap" (dashes are accepted too).
func ParseKind(s string) (Kind, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for k, name := range kindNames {
		if name == norm && Kind(k) != KindUnknown {
			return Kind(k), nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown gesture kind %q", s)
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

var kindPrefixes = map[Kind]string{
	KindSingleTap: "ST",
	KindDoubleTap: "DT",
	KindLongPress: "LP",
}

// Interaction is a classified gesture carrying a fixed wire code. The zero
// value is Unknown.
type Interaction struct {
	code string
	kind Kind
	zone Zone
}

// Unknown is the sentinel returned for unclassifiable input. It is never transmitted.
var Unknown = Interaction{}

var (
	FlingUp    = Interaction{code: "FLUP", kind: KindFling}
	FlingDown  = Interaction{code: "FLDN", kind: KindFling}
	FlingLeft  = Interaction{code: "FLLT", kind: KindFling}
	FlingRight = Interaction{code: "FLRT", kind: KindFling}
)

func zoned(kind Kind, z Zone) Interaction {
	return Interaction{code: kindPrefixes[kind] + zoneSuffixes[z], kind: kind, zone: z}
}

// SingleTap returns the single-tap interaction for zone z.
func SingleTap(z Zone) Interaction { return zoned(KindSingleTap, z) }

// DoubleTap returns the double-tap interaction for zone z.
func DoubleTap(z Zone) Interaction { return zoned(KindDoubleTap, z) }

// LongPress returns the long-press interaction for zone z.
func LongPress(z Zone) Interaction { return zoned(KindLongPress, z) }

// Code returns the ASCII wire code, empty for Unknown.
func (i Interaction) Code() string { return i.code }

// Kind returns the gesture family.
func (i Interaction) Kind() Kind { return i.kind }

// Zone returns the actuator zone and whether the interaction has one (flings don't).
func (i Interaction) Zone() (Zone, bool) {
	switch i.kind {
	case KindSingleTap, KindDoubleTap, KindLongPress:
		return i.zone, true
	default:
		return 0, false
	}
}

// IsUnknown reports whether i is the Unknown sentinel.
func (i Interaction) IsUnknown() bool { return i.kind == KindUnknown }

func (i Interaction) String() string {
	if i.IsUnknown() {
		return "UNKNOWN"
	}
	return i.code
}

// All lists every transmittable interaction: the four flings followed by
// single taps, double taps and long presses in zone order.
func All() []Interaction {
	all := []Interaction{FlingUp, FlingDown, FlingLeft, FlingRight}
	for _, kind := range []Kind{KindSingleTap, KindDoubleTap, KindLongPress} {
		for _, z := range Zones() {
			all = append(all, zoned(kind, z))
		}
	}
	return all
}

var byCode = func() map[string]Interaction {
	m := make(map[string]Interaction)
	for _, i := range All() {
		m[i.code] = i
	}
	return m
}()

// Parse resolves a wire code (case-insensitive) to its Interaction.
func Parse(code string) (Interaction, error) {
	i, ok := byCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return Unknown, fmt.Errorf("unknown interaction code %q", code)
	}
	return i, nil
}
