package model

// Domain names one category of monitored data. Each domain has its own poller and cache slot.
type Domain string

const (
	DomainStatus   Domain = "status"
	DomainBalances Domain = "balances"
	DomainBridge   Domain = "bridge"
	DomainActivity Domain = "activity"
)

// Domains lists every domain in reporting order.
func Domains() []Domain {
	return []Domain{DomainStatus, DomainBalances, DomainBridge, DomainActivity}
}

// Valid reports whether d is one of Domains.
func (d Domain) Valid() bool {
	for _, known := range Domains() {
		if d == known {
			return true
		}
	}
	return false
}
