package maccheese_client

const (
	// Base URL
	DefaultBaseURL = "http://localhost:8000/maccheese"

	// API Endpoints
	AuctionListEndpoint   = "/AuctionList_V.php"
	AuctionDetailEndpoint = "/AuctionitemDetail.php"
	AuctionBidsEndpoint   = "/AuctionBids.php"
	AuctionEndedEndpoint  = "/auction_ended.php"

	// Query parameters
	AuctionIDParam = "auction_id"

	// endDate layout and zone used by the server
	EndDateLayout   = "2006-01-02 15:04:05"
	ServerTimeZone  = "Asia/Seoul"
	AcceptHeader    = "Accept"
	AcceptJSONValue = "application/json"
)
