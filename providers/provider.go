// Package providers implements the per-provider API clients behind calendar
// sync and video-conference link generation. Every client speaks through the
// shared rate-limited transport and normalizes provider payloads into the
// integration package's canonical shapes.
package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"synchub/audit"
	"synchub/integration"
	"synchub/ratelimit"
)

// ConnectionStatus is the outcome of a provider connection test.
type ConnectionStatus struct {
	Provider integration.Provider `json:"provider"`
	Type     integration.Type     `json:"type"`
	Healthy  bool                 `json:"healthy"`
	Message  string               `json:"message,omitempty"`
}

// Client is one provider's API surface. Calendar providers implement
// GetBusyTimes and event CRUD; video providers implement meeting CRUD. A
// provider that spans both (Google, Outlook/Teams via Graph) registers a
// client per integration type.
type Client interface {
	Provider() integration.Provider

	// TestConnection performs the cheapest authenticated call the provider
	// offers and reports whether the stored credentials work.
	TestConnection(ctx context.Context, integ *integration.Integration) ConnectionStatus

	// GetBusyTimes returns the integration's busy events inside [start, end),
	// normalized and in UTC.
	GetBusyTimes(ctx context.Context, integ *integration.Integration, start, end time.Time) ([]integration.NormalizedEvent, error)

	// Create provisions an external event or meeting for a booking.
	Create(ctx context.Context, integ *integration.Integration, booking *integration.Booking) (*integration.MeetingDetails, error)

	// Update pushes the booking's current details onto an existing external
	// event or meeting.
	Update(ctx context.Context, integ *integration.Integration, booking *integration.Booking, externalID string) error

	// Delete removes the external event or meeting. A reference the provider
	// no longer knows is treated as already deleted.
	Delete(ctx context.Context, integ *integration.Integration, externalID string) error
}

// Deps carries the shared infrastructure every client is built on.
type Deps struct {
	Limiter    *ratelimit.Limiter
	Audit      *audit.Logger
	HTTPClient *http.Client
}

// Registry maps (provider, type) to its client.
type Registry struct {
	clients map[integration.Provider]map[integration.Type]Client
}

// NewRegistry builds the full provider registry.
func NewRegistry(deps Deps) *Registry {
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: requestTimeout}
	}
	rest := newRESTClient(deps)

	r := &Registry{clients: map[integration.Provider]map[integration.Type]Client{}}
	r.Register(integration.TypeCalendar, NewGoogleClient(deps))
	r.Register(integration.TypeCalendar, NewOutlookClient(rest))
	r.Register(integration.TypeCalendar, NewAppleClient(rest))
	r.Register(integration.TypeVideo, NewTeamsClient(rest))
	r.Register(integration.TypeVideo, NewZoomClient(rest))
	r.Register(integration.TypeVideo, NewWebexClient(rest))
	return r
}

// Register binds a client for one integration type, replacing any previous
// binding.
func (r *Registry) Register(typ integration.Type, c Client) {
	byType, ok := r.clients[c.Provider()]
	if !ok {
		byType = map[integration.Type]Client{}
		r.clients[c.Provider()] = byType
	}
	byType[typ] = c
}

// Client resolves the client for a provider and integration type.
func (r *Registry) Client(p integration.Provider, typ integration.Type) (Client, error) {
	if c, ok := r.clients[p][typ]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("no %s client registered for provider %s", typ, p)
}
