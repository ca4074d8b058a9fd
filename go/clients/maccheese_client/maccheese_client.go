package maccheese_client

import (
	"time"

	"github.com/duksung/maccheese/go/clients"
	"github.com/jonboulle/clockwork"
)

type MacCheeseClient struct {
	*clients.BaseClient
	location *time.Location
	clock    clockwork.Clock
}

// NewMacCheeseClient creates a client. Snapshots are stamped with clock, or the
// real clock when nil.
func NewMacCheeseClient(baseURL string, clock clockwork.Clock) *MacCheeseClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	client := &MacCheeseClient{
		BaseClient: clients.NewBaseClient(baseURL),
		location:   serverLocation(),
		clock:      clock,
	}

	client.SetHeader(AcceptHeader, AcceptJSONValue)

	return client
}

// serverLocation falls back to a fixed +09:00 zone when tzdata is not installed.
func serverLocation() *time.Location {
	loc, err := time.LoadLocation(ServerTimeZone)
	if err != nil {
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}
