package countdown

import "fmt"

const (
	// EndedDisplay is rendered for every ended auction regardless of local state.
	EndedDisplay = "00:00:00"

	// LoadingDisplay is rendered before the first snapshot arrives.
	LoadingDisplay = "--:--:--"

	// UnavailableDisplay is rendered when the first load failed.
	UnavailableDisplay = "unable to load"
)

// Format renders seconds as "HH:MM:SS", or "D-n HH:MM:SS" when at least a day remains.
func Format(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}

	days := seconds / 86400
	hours := (seconds % 86400) / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60

	if days > 0 {
		return fmt.Sprintf("D-%d %02d:%02d:%02d", days, hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
}
