package publisher

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/duksung/maccheese/go/internal/monitor"
	"github.com/google/uuid"
)

func TestBuildMsg(t *testing.T) {
	event := monitor.WonEvent{
		ID:         uuid.New(),
		AuctionID:  42,
		WinnerID:   "20231234",
		Amount:     9000,
		DetectedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	msg, err := buildMsg("auction.events", event)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Subject != "auction.events.won.42" {
		t.Errorf("unexpected subject %q", msg.Subject)
	}
	if got := msg.Header.Get("Event-ID"); got != event.ID.String() {
		t.Errorf("expected Event-ID header %s, got %q", event.ID, got)
	}
	if got := msg.Header.Get("Auction-ID"); got != "42" {
		t.Errorf("expected Auction-ID header 42, got %q", got)
	}

	var decoded monitor.WonEvent
	if err := json.Unmarshal(msg.Data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.ID != event.ID || decoded.Amount != 9000 || decoded.WinnerID != "20231234" {
		t.Errorf("unexpected payload %+v", decoded)
	}
}

func TestStreamConfig(t *testing.T) {
	cfg := DefaultJetStreamConfig()
	sc := streamConfig(cfg)

	if sc.Name != "AUCTION_EVENTS" {
		t.Errorf("unexpected stream name %q", sc.Name)
	}
	if len(sc.Subjects) != 1 || sc.Subjects[0] != "auction.events.>" {
		t.Errorf("unexpected subjects %v", sc.Subjects)
	}
	if !isStreamConfigEqual(sc, streamConfig(cfg)) {
		t.Error("expected identical configs to be equal")
	}

	cfg.DuplicateWindow = time.Minute
	if isStreamConfigEqual(sc, streamConfig(cfg)) {
		t.Error("expected a changed duplicate window to differ")
	}

	cfg = DefaultJetStreamConfig()
	cfg.SubjectPrefix = "other"
	if isStreamConfigEqual(sc, streamConfig(cfg)) {
		t.Error("expected changed subjects to differ")
	}
}
