package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/duksung/maccheese/go/internal/models"
)

func TestSetupServices_StartsWithOnlyConfiguredWatches(t *testing.T) {
	settings := defaultSettings()
	settings.IdentityFile = filepath.Join(t.TempDir(), "identity.yaml")
	settings.Watch = []models.AuctionID{3, 1}

	services, err := setupServices(context.Background(), settings)
	if err != nil {
		t.Fatal(err)
	}
	defer services.Close()

	watched := services.Monitor.Watched()
	if len(watched) != 2 || watched[0] != 1 || watched[1] != 3 {
		t.Errorf("expected watch set [1 3], got %v", watched)
	}
	if stats := services.Monitor.Stats(); stats.Notified != 0 || stats.Resolved != 0 {
		t.Errorf("expected a fresh monitor with nothing notified, got %+v", stats)
	}
	if services.Publisher != nil {
		t.Error("expected no publisher without NATS_URL")
	}
}
