package model

// OperatorStatus is one bridge operator row.
type OperatorStatus struct {
	OperatorID      string `json:"operator_id"`
	OperatorAddress string `json:"operator_address"`
	Status          string `json:"status"`
}

// DepositInfo is one bridge deposit row.
type DepositInfo struct {
	DepositRequestTxid string  `json:"deposit_request_txid"`
	DepositTxid        *string `json:"deposit_txid"`
	Status             string  `json:"status"`
}

// WithdrawalInfo is one bridge withdrawal row.
type WithdrawalInfo struct {
	WithdrawalRequestTxid string  `json:"withdrawal_request_txid"`
	FulfillmentTxid       *string `json:"fulfillment_txid"`
	Status                string  `json:"status"`
}

// ReimbursementInfo is one operator reimbursement (claim) row.
type ReimbursementInfo struct {
	ClaimTxid     string  `json:"claim_txid"`
	ChallengeStep string  `json:"challenge_step"`
	PayoutTxid    *string `json:"payout_txid"`
	Status        string  `json:"status"`
}

// BridgeStatus is replaced wholesale on every successful poll.
type BridgeStatus struct {
	Operators      []OperatorStatus    `json:"operators"`
	Deposits       []DepositInfo       `json:"deposits"`
	Withdrawals    []WithdrawalInfo    `json:"withdrawals"`
	Reimbursements []ReimbursementInfo `json:"reimbursements"`
}

// EmptyBridgeStatus returns a status whose lists encode as [] rather than null.
func EmptyBridgeStatus() BridgeStatus {
	return BridgeStatus{
		Operators:      []OperatorStatus{},
		Deposits:       []DepositInfo{},
		Withdrawals:    []WithdrawalInfo{},
		Reimbursements: []ReimbursementInfo{},
	}
}
