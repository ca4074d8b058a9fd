package models

import (
	"strconv"
	"time"
)

// AuctionID identifies an auction for its whole lifetime.
type AuctionID int64

func (id AuctionID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseAuctionID parses the decimal form used in URLs and query strings.
func ParseAuctionID(s string) (AuctionID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return AuctionID(v), nil
}

// AuctionStatus defines the server-reported lifecycle state of an auction.
// Values match the status_code field of the auction API.
type AuctionStatus int

const (
	AuctionStatusScheduled AuctionStatus = 0
	AuctionStatusCancelled AuctionStatus = 1
	AuctionStatusOngoing   AuctionStatus = 2
	AuctionStatusFinished  AuctionStatus = 3

	// AuctionStatusUnknown is used for codes the client does not recognise.
	AuctionStatusUnknown AuctionStatus = -1
)

// ParseAuctionStatus maps a raw status code to an AuctionStatus.
func ParseAuctionStatus(code int) AuctionStatus {
	switch AuctionStatus(code) {
	case AuctionStatusScheduled, AuctionStatusCancelled, AuctionStatusOngoing, AuctionStatusFinished:
		return AuctionStatus(code)
	default:
		return AuctionStatusUnknown
	}
}

func (s AuctionStatus) String() string {
	switch s {
	case AuctionStatusScheduled:
		return "SCHEDULED"
	case AuctionStatusCancelled:
		return "CANCELLED"
	case AuctionStatusOngoing:
		return "ONGOING"
	case AuctionStatusFinished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the status can no longer change.
func (s AuctionStatus) Terminal() bool {
	return s == AuctionStatusFinished || s == AuctionStatusCancelled
}

// BidEntry is one standing in an auction's bid ranking. Rank 1 is the highest.
type BidEntry struct {
	Rank     int    `json:"rank"`
	BidderID string `json:"bidder_id"`
	Amount   int    `json:"amount"`
}

// Snapshot is one immutable fetched view of an auction's server-side state.
// A newer fetch supersedes it; it is never mutated.
type Snapshot struct {
	ID               AuctionID     `json:"id"`
	ItemName         string        `json:"item_name"`
	Status           AuctionStatus `json:"status"`
	EndTimestamp     *time.Time    `json:"end_timestamp,omitempty"`
	RemainingSeconds int           `json:"remaining_seconds"`
	Bids             []BidEntry    `json:"bids"`
	MinPrice         int           `json:"min_price"`
	Photos           []string      `json:"photos"`
	FetchedAt        time.Time     `json:"fetched_at"`
}

// Ended reports whether the server considers the auction over.
func (s Snapshot) Ended() bool {
	return s.Status.Terminal() || s.RemainingSeconds <= 0
}

// Remaining returns the authoritative remaining seconds clamped at zero.
func (s Snapshot) Remaining() int {
	if s.RemainingSeconds < 0 {
		return 0
	}
	return s.RemainingSeconds
}

// RemainingAt derives the remaining seconds from the end timestamp against now.
// Auctions without an end timestamp have no time left.
func (s Snapshot) RemainingAt(now time.Time) int {
	if s.EndTimestamp == nil {
		return 0
	}
	diff := int(s.EndTimestamp.Sub(now) / time.Second)
	if diff < 0 {
		return 0
	}
	return diff
}

// Winner returns the entry with the lowest rank in bids.
func Winner(bids []BidEntry) (BidEntry, bool) {
	if len(bids) == 0 {
		return BidEntry{}, false
	}
	top := bids[0]
	for _, b := range bids[1:] {
		if b.Rank < top.Rank {
			top = b
		}
	}
	return top, true
}

// Winner returns the snapshot's rank-1 bid, if any.
func (s Snapshot) Winner() (BidEntry, bool) {
	return Winner(s.Bids)
}
