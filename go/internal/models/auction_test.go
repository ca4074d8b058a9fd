package models

import (
	"testing"
	"time"
)

func TestSnapshot_Ended(t *testing.T) {
	cases := []struct {
		name      string
		status    AuctionStatus
		remaining int
		want      bool
	}{
		{"ongoing with time left", AuctionStatusOngoing, 10, false},
		{"ongoing at zero", AuctionStatusOngoing, 0, true},
		{"ongoing negative", AuctionStatusOngoing, -4, true},
		{"finished with time left", AuctionStatusFinished, 30, true},
		{"cancelled with time left", AuctionStatusCancelled, 30, true},
		{"scheduled with time left", AuctionStatusScheduled, 100, false},
		{"unknown with time left", AuctionStatusUnknown, 100, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := Snapshot{Status: tc.status, RemainingSeconds: tc.remaining}
			if got := s.Ended(); got != tc.want {
				t.Errorf("Ended() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParseAuctionStatus(t *testing.T) {
	if got := ParseAuctionStatus(3); got != AuctionStatusFinished {
		t.Errorf("expected FINISHED, got %s", got)
	}
	if got := ParseAuctionStatus(1); got != AuctionStatusCancelled {
		t.Errorf("expected CANCELLED, got %s", got)
	}
	if got := ParseAuctionStatus(4); got != AuctionStatusUnknown {
		t.Errorf("expected UNKNOWN for code 4, got %s", got)
	}
}

func TestSnapshot_RemainingAt(t *testing.T) {
	now := time.Date(2025, 12, 4, 12, 0, 0, 0, time.UTC)
	end := now.Add(90*time.Second + 400*time.Millisecond)

	s := Snapshot{EndTimestamp: &end}
	if got := s.RemainingAt(now); got != 90 {
		t.Errorf("expected 90, got %d", got)
	}
	if got := s.RemainingAt(end.Add(time.Minute)); got != 0 {
		t.Errorf("expected 0 after end, got %d", got)
	}
	if got := (Snapshot{}).RemainingAt(now); got != 0 {
		t.Errorf("expected 0 without end timestamp, got %d", got)
	}
}

func TestWinner(t *testing.T) {
	bids := []BidEntry{
		{Rank: 2, BidderID: "B", Amount: 8000},
		{Rank: 1, BidderID: "A", Amount: 7000},
		{Rank: 3, BidderID: "C", Amount: 6000},
	}

	w, ok := Winner(bids)
	if !ok {
		t.Fatal("expected a winner")
	}
	if w.BidderID != "A" {
		t.Errorf("expected rank 1 bidder A, got %s", w.BidderID)
	}

	if _, ok := Winner(nil); ok {
		t.Error("expected no winner for empty list")
	}
}

func TestParseAuctionID(t *testing.T) {
	id, err := ParseAuctionID("42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 42 || id.String() != "42" {
		t.Errorf("unexpected id %v", id)
	}
	if _, err := ParseAuctionID("abc"); err == nil {
		t.Error("expected error for non-numeric id")
	}
}
