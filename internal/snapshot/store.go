package snapshot

import "strata-netmon/internal/model"

// Store aggregates one slot per domain. Slots never share a lock.
type Store struct {
	Status   *Slot[model.NetworkStatus]
	Balances *Slot[model.PaymasterWallets]
	Bridge   *Slot[model.BridgeStatus]
	Activity *Slot[model.ActivityStats]
}

// NewStore creates a store with every slot unpopulated.
func NewStore() *Store {
	return &Store{
		Status:   NewSlot[model.NetworkStatus](model.DomainStatus),
		Balances: NewSlot[model.PaymasterWallets](model.DomainBalances),
		Bridge:   NewSlot[model.BridgeStatus](model.DomainBridge),
		Activity: NewSlot[model.ActivityStats](model.DomainActivity),
	}
}

// Reports returns the freshness of every domain in model.Domains order.
func (s *Store) Reports() []Report {
	return []Report{
		s.Status.Report(),
		s.Balances.Report(),
		s.Bridge.Report(),
		s.Activity.Report(),
	}
}
