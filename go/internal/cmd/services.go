package main

import (
	"context"
	"fmt"

	"github.com/duksung/maccheese/go/clients/maccheese_client"
	"github.com/duksung/maccheese/go/internal/gateway"
	"github.com/duksung/maccheese/go/internal/identity"
	"github.com/duksung/maccheese/go/internal/monitor"
	"github.com/duksung/maccheese/go/internal/publisher"
	"github.com/duksung/maccheese/go/internal/session"
	"github.com/duksung/maccheese/go/internal/wallclock"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Client    *maccheese_client.MacCheeseClient
	Clock     *wallclock.WallClock
	Identity  identity.Store
	Monitor   *monitor.Monitor
	Sessions  *session.Manager
	Publisher *publisher.JetStreamPublisher
	Gateway   *gateway.Service
}

func setupServices(ctx context.Context, settings Settings) (*Services, error) {
	// Wire up dependency injection chain
	// HTTP client → clock and identity → monitor and sessions → gateway

	clock := clockwork.NewRealClock()

	client := maccheese_client.NewMacCheeseClient(settings.BaseURL, clock)
	client.SetTimeout(settings.APITimeout)

	wallClock := wallclock.New(clock, settings.TickInterval)
	store := identity.NewFileStore(settings.IdentityFile)

	mon := monitor.NewMonitor(client, store, clock, monitor.Config{
		SweepInterval:   settings.SweepInterval,
		CheckTimeout:    settings.APITimeout,
		AutoResolveLost: settings.AutoResolveLost,
	})
	mon.WatchAll(settings.Watch...)

	sessions := session.NewManager(ctx, client, wallClock, clock, session.Config{
		DetailInterval:  settings.DetailInterval,
		BidInterval:     settings.BidInterval,
		ResyncThreshold: settings.ResyncThreshold,
	})

	services := &Services{
		Client:   client,
		Clock:    wallClock,
		Identity: store,
		Monitor:  mon,
		Sessions: sessions,
	}

	deps := gateway.Dependencies{
		Catalog:   client,
		Watcher:   mon,
		Sessions:  sessions,
		Lifecycle: wallClock,
		Identity:  store,
	}

	if settings.NATSURL != "" {
		cfg := publisher.DefaultJetStreamConfig()
		cfg.URL = settings.NATSURL
		pub, err := publisher.NewJetStreamPublisher(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create won event publisher: %w", err)
		}
		services.Publisher = pub
		deps.Broker = pub
		mon.AddSink(pub)
	} else {
		log.Info().Msg("NATS_URL not set, won events stay in process")
	}

	services.Gateway = gateway.NewService(gateway.DefaultConfig(), deps)
	mon.AddSink(services.Gateway.Connections())

	return services, nil
}

// Close releases what Run started. Call after the run context is cancelled.
func (s *Services) Close() {
	s.Sessions.CloseAll()
	s.Monitor.Close()
	if s.Publisher != nil {
		if err := s.Publisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close won event publisher")
		}
	}
}
