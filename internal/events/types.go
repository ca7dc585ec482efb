package events

import "strings"

// Event enumerates topics on the bus.
type Event string

const (
	// EventTickPrefix prefixes per-ticker relay topics; see TickTopic.
	EventTickPrefix    Event = "tick."
	EventStreamStarted Event = "stream.started"
	EventStreamStopped Event = "stream.stopped"
)

// TickTopic is the topic carrying encoded frames for one ticker.
func TickTopic(ticker string) Event {
	return EventTickPrefix + Event(strings.ToUpper(ticker))
}

// StreamLifecycle is published on EventStreamStarted and EventStreamStopped.
type StreamLifecycle struct {
	Ticker string
	Reason string
}
