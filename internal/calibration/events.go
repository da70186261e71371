package calibration

// EventType identifies session events.
type EventType int

const (
	EventImageSet EventType = iota
	EventCalibrantChanged
	EventPeaksChanged
	EventRefined
	EventIntegrated
	EventLoaded
	EventSaved
)

func (e EventType) String() string {
	switch e {
	case EventImageSet:
		return "image-set"
	case EventCalibrantChanged:
		return "calibrant-changed"
	case EventPeaksChanged:
		return "peaks-changed"
	case EventRefined:
		return "refined"
	case EventIntegrated:
		return "integrated"
	case EventLoaded:
		return "loaded"
	case EventSaved:
		return "saved"
	default:
		return "unknown"
	}
}

// EventListener is called synchronously when an event occurs.
type EventListener func(data interface{})

// On registers an event listener for the specified event type.
func (s *Session) On(event EventType, listener EventListener) {
	if s.listeners == nil {
		s.listeners = make(map[EventType][]EventListener)
	}
	s.listeners[event] = append(s.listeners[event], listener)
}

func (s *Session) emit(event EventType, data interface{}) {
	for _, listener := range s.listeners[event] {
		listener(data)
	}
}
