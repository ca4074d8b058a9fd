package models

// LoadState describes whether a polled view has ever received server data.
type LoadState string

const (
	LoadStateLoading LoadState = "LOADING"
	LoadStateLoaded  LoadState = "LOADED"
	// LoadStateFailed means no snapshot has ever been applied and the last attempt failed.
	LoadStateFailed LoadState = "FAILED"
)
