package types

// Press is a debounced button press classified by hold duration.
type Press int

const (
	ShortPress Press = iota
	MediumPress
	LongPress
)

func (p Press) String() string {
	switch p {
	case ShortPress:
		return "short"
	case MediumPress:
		return "medium"
	case LongPress:
		return "long"
	default:
		return "unknown"
	}
}

// WakeCause tells the boot sequence why the device left the halt state.
type WakeCause int

const (
	WakeOther WakeCause = iota
	WakeButtonEdge
	WakeTimerExpired
)

func (w WakeCause) String() string {
	switch w {
	case WakeButtonEdge:
		return "button"
	case WakeTimerExpired:
		return "timer"
	default:
		return "other"
	}
}
