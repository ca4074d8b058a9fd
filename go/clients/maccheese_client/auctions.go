package maccheese_client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/duksung/maccheese/go/clients"
	"github.com/duksung/maccheese/go/internal/models"
)

type BidRank struct {
	Rank      int    `json:"rank"`
	StudentID string `json:"studentId"`
	Amount    int    `json:"amount"`
}

type AuctionBidsResponse struct {
	Bids *[]BidRank `json:"bids"`
}

type AuctionItemDetail struct {
	ID              int64     `json:"id"`
	ItemName        string    `json:"itemName"`
	Description     *string   `json:"description"`
	StatusCode      int       `json:"status_code"`
	StatusText      string    `json:"status_text"`
	StartDate       *string   `json:"startDate"`
	EndDate         *string   `json:"endDate"`
	MinPrice        int       `json:"minPrice"`
	TimeLeftSeconds int       `json:"timeLeftSeconds"`
	Bids            []BidRank `json:"bids"`
	Photos          []string  `json:"photos"`
}

type AuctionListItem struct {
	ID               int64   `json:"auction_pkey"`
	ItemPkey         int64   `json:"item_pkey"`
	Title            string  `json:"title"`
	Category         *string `json:"category"`
	MinPrice         int     `json:"min_price"`
	StatusCode       int     `json:"status_code"`
	StatusText       string  `json:"status_text"`
	StartDate        *string `json:"start_date"`
	EndDate          *string `json:"end_date"`
	RemainingSeconds *int    `json:"remaining_seconds"`
	PhotoURL         *string `json:"photo_url"`
}

type AuctionListResponse struct {
	StatusList []struct {
		Code  int    `json:"code"`
		Label string `json:"label"`
	} `json:"status_list"`
	Auctions []AuctionListItem `json:"auctions"`
}

// EndedDetail is the summary shown once an auction is over.
type EndedDetail struct {
	Name       *string `json:"name"`
	ImageCount *int    `json:"imageCount"`
	WinnerID   *string `json:"winnerId"`
	FinalPrice *int    `json:"finalPrice"`
	Notice     *string `json:"notice"`
}

func auctionQuery(endpoint string, id models.AuctionID) string {
	q := url.Values{}
	q.Set(AuctionIDParam, id.String())
	return endpoint + "?" + q.Encode()
}

// FetchAuctionDetail returns the current snapshot of one auction.
func (c *MacCheeseClient) FetchAuctionDetail(ctx context.Context, id models.AuctionID) (models.Snapshot, error) {
	body, err := c.Get(ctx, auctionQuery(AuctionDetailEndpoint, id))
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to get auction detail %d: %w", id, err)
	}

	var detail AuctionItemDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return models.Snapshot{}, fmt.Errorf("%w: failed to unmarshal auction detail: %v, raw response: %s", clients.ErrDecode, err, string(body))
	}

	if detail.ID == 0 {
		return models.Snapshot{}, fmt.Errorf("%w: auction %d", clients.ErrNotFound, id)
	}
	if models.AuctionID(detail.ID) != id {
		return models.Snapshot{}, fmt.Errorf("%w: requested auction %d, got %d", clients.ErrDecode, id, detail.ID)
	}

	end, err := c.parseEndDate(detail.EndDate)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("%w: %v", clients.ErrDecode, err)
	}

	return models.Snapshot{
		ID:               id,
		ItemName:         detail.ItemName,
		Status:           models.ParseAuctionStatus(detail.StatusCode),
		EndTimestamp:     end,
		RemainingSeconds: detail.TimeLeftSeconds,
		Bids:             toBidEntries(detail.Bids),
		MinPrice:         detail.MinPrice,
		Photos:           detail.Photos,
		FetchedAt:        c.clock.Now(),
	}, nil
}

// FetchBidRanking returns the server-ordered bid ranking of one auction.
func (c *MacCheeseClient) FetchBidRanking(ctx context.Context, id models.AuctionID) ([]models.BidEntry, error) {
	body, err := c.Get(ctx, auctionQuery(AuctionBidsEndpoint, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get bids for auction %d: %w", id, err)
	}

	var response AuctionBidsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal bids: %v, raw response: %s", clients.ErrDecode, err, string(body))
	}
	if response.Bids == nil {
		return nil, fmt.Errorf("%w: bids field missing, raw response: %s", clients.ErrDecode, string(body))
	}

	return toBidEntries(*response.Bids), nil
}

// FetchAuctionEnded returns the ended summary of one auction.
func (c *MacCheeseClient) FetchAuctionEnded(ctx context.Context, id models.AuctionID) (*EndedDetail, error) {
	body, err := c.Get(ctx, auctionQuery(AuctionEndedEndpoint, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get ended detail for auction %d: %w", id, err)
	}

	var detail EndedDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal ended detail: %v, raw response: %s", clients.ErrDecode, err, string(body))
	}

	return &detail, nil
}

// FetchAuctionList returns every listed auction as a partial snapshot without bids.
func (c *MacCheeseClient) FetchAuctionList(ctx context.Context) ([]models.Snapshot, error) {
	body, err := c.Get(ctx, AuctionListEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get auction list: %w", err)
	}

	var response AuctionListResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal auction list: %v, raw response: %s", clients.ErrDecode, err, string(body))
	}

	fetchedAt := c.clock.Now()
	auctions := make([]models.Snapshot, 0, len(response.Auctions))
	for _, item := range response.Auctions {
		end, err := c.parseEndDate(item.EndDate)
		if err != nil {
			return nil, fmt.Errorf("%w: auction %d: %v", clients.ErrDecode, item.ID, err)
		}

		snap := models.Snapshot{
			ID:           models.AuctionID(item.ID),
			ItemName:     item.Title,
			Status:       models.ParseAuctionStatus(item.StatusCode),
			EndTimestamp: end,
			MinPrice:     item.MinPrice,
			FetchedAt:    fetchedAt,
		}
		if item.RemainingSeconds != nil {
			snap.RemainingSeconds = *item.RemainingSeconds
		} else {
			snap.RemainingSeconds = snap.RemainingAt(fetchedAt)
		}
		if item.PhotoURL != nil && *item.PhotoURL != "" {
			snap.Photos = []string{*item.PhotoURL}
		}
		auctions = append(auctions, snap)
	}

	return auctions, nil
}

func (c *MacCheeseClient) parseEndDate(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(EndDateLayout, strings.TrimSpace(*raw), c.location)
	if err != nil {
		return nil, fmt.Errorf("failed to parse end date %q: %w", *raw, err)
	}
	return &t, nil
}

func toBidEntries(ranks []BidRank) []models.BidEntry {
	entries := make([]models.BidEntry, 0, len(ranks))
	for _, r := range ranks {
		entries = append(entries, models.BidEntry{
			Rank:     r.Rank,
			BidderID: r.StudentID,
			Amount:   r.Amount,
		})
	}
	return entries
}
