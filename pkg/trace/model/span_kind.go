package model

type SpanKind int

const (
	Entry        SpanKind = 1
	Exit         SpanKind = 2
	Intermediate SpanKind = 3
)

func (k SpanKind) String() string {
	switch k {
	case Entry:
		return "ENTRY"
	case Exit:
		return "EXIT"
	case Intermediate:
		return "INTERMEDIATE"
	default:
		return "UNKNOWN"
	}
}

type LifecycleState int

const (
	Created LifecycleState = iota
	Active
	Ended
	Cancelled
)

func (s LifecycleState) String() string {
	switch s {
	case Created:
		return "CREATED"
	case Active:
		return "ACTIVE"
	case Ended:
		return "ENDED"
	case Cancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// IsFinal reports whether no further transition is possible.
func (s LifecycleState) IsFinal() bool {
	return s == Ended || s == Cancelled
}
