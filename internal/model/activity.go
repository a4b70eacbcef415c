package model

// Account is an account-abstraction wallet surfaced in a selection.
type Account struct {
	Address           string `json:"address"`
	CreationTimestamp string `json:"creation_timestamp"`
	GasUsed           uint64 `json:"gas_used"`
}

// ActivityStats maps stat display names to per-window values, plus account selections.
type ActivityStats struct {
	Stats            map[string]map[string]uint64 `json:"stats"`
	SelectedAccounts map[string][]Account         `json:"selected_accounts"`
}

// NewActivityStats returns empty, non-nil mappings.
func NewActivityStats() ActivityStats {
	return ActivityStats{
		Stats:            make(map[string]map[string]uint64),
		SelectedAccounts: make(map[string][]Account),
	}
}
