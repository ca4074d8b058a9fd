package leaderboard

import (
	"sort"

	"github.com/duksung/maccheese/go/internal/models"
)

// SortForDisplay returns a copy of bids ordered by amount descending, ties broken by
// ascending server rank. The server rank field may transiently disagree with amounts.
func SortForDisplay(bids []models.BidEntry) []models.BidEntry {
	sorted := make([]models.BidEntry, len(bids))
	copy(sorted, bids)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Amount != sorted[j].Amount {
			return sorted[i].Amount > sorted[j].Amount
		}
		return sorted[i].Rank < sorted[j].Rank
	})
	return sorted
}

// Move describes how one bidder's display position changed between two rankings.
// From or To is -1 when the bidder was added or removed.
type Move struct {
	BidderID string `json:"bidder_id"`
	From     int    `json:"from"`
	To       int    `json:"to"`
}

// Diff compares two display orders keyed by bidder identity, not by index.
// Bidders whose position is unchanged are omitted.
func Diff(prev, next []models.BidEntry) []Move {
	before := positions(prev)
	after := positions(next)

	var moves []Move
	for i, b := range next {
		if from, ok := before[b.BidderID]; !ok {
			moves = append(moves, Move{BidderID: b.BidderID, From: -1, To: i})
		} else if from != i {
			moves = append(moves, Move{BidderID: b.BidderID, From: from, To: i})
		}
	}
	for i, b := range prev {
		if _, ok := after[b.BidderID]; !ok {
			moves = append(moves, Move{BidderID: b.BidderID, From: i, To: -1})
		}
	}
	return moves
}

// positions keeps the first position of a bidder that appears more than once.
func positions(bids []models.BidEntry) map[string]int {
	pos := make(map[string]int, len(bids))
	for i, b := range bids {
		if _, seen := pos[b.BidderID]; !seen {
			pos[b.BidderID] = i
		}
	}
	return pos
}
