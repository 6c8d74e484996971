// Package noop discards published events. It is the default when no
// event transport is configured.
package noop

import (
	"context"

	"linkcast/internal/cast"
)

// Publisher drops everything.
type Publisher struct{}

// New creates a Publisher.
func New() Publisher { return Publisher{} }

// Publish discards the event.
func (Publisher) Publish(context.Context, string, any) (string, error) {
	return "", nil
}

var _ cast.Publisher = Publisher{}
