package model

// HealthState classifies a monitored endpoint.
type HealthState string

const (
	Online  HealthState = "online"
	Offline HealthState = "offline"
	Unknown HealthState = "unknown"
)

// NetworkStatus is the condensed health of the node, RPC and bundler endpoints.
type NetworkStatus struct {
	BatchProducer   HealthState `json:"batch_producer"`
	RPCEndpoint     HealthState `json:"rpc_endpoint"`
	BundlerEndpoint HealthState `json:"bundler_endpoint"`
}

// UnknownNetworkStatus is served before the first status poll completes.
func UnknownNetworkStatus() NetworkStatus {
	return NetworkStatus{
		BatchProducer:   Unknown,
		RPCEndpoint:     Unknown,
		BundlerEndpoint: Unknown,
	}
}

// HealthFromBool maps a health check outcome to online/offline.
func HealthFromBool(ok bool) HealthState {
	if ok {
		return Online
	}
	return Offline
}
