package domain

// Alert types and severities raised by the periodic scan.
const (
	AlertLowStock     = "low_stock"
	AlertExpiringSoon = "expiring_soon"

	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert is a condition found by a scan. Alerts are published, not stored.
type Alert struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	ItemID   string `json:"item_id,omitempty"`
	BatchID  string `json:"batch_id,omitempty"`
}
