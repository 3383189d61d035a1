package enums

import "fmt"

// HistoryType classifies order_history rows.
type HistoryType string

const (
	HistoryStatusChange HistoryType = "STATUS_CHANGE"
	HistoryIncident     HistoryType = "INCIDENT"
)

// IsValid reports whether the value is a known HistoryType.
func (h HistoryType) IsValid() bool {
	return h == HistoryStatusChange || h == HistoryIncident
}

// ParseHistoryType converts raw input into a HistoryType.
func ParseHistoryType(value string) (HistoryType, error) {
	h := HistoryType(value)
	if !h.IsValid() {
		return "", fmt.Errorf("invalid history type %q", value)
	}
	return h, nil
}
