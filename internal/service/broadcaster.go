package service

import "ems-dispatch-api/internal/model"

// Broadcaster publishes events to the live dispatch feed.
// A nil Broadcaster disables the feed without changing service behavior.
type Broadcaster interface {
	Publish(event model.Event)
}
