package model

import "github.com/prism-dag/prismd/domain/consensus/model/externalapi"

// CoinbaseManager exposes methods for handling blocks'
// coinbase transactions
type CoinbaseManager interface {
	ValidateCoinbase(content *externalapi.TransactionContent) error
	CoinbaseReward() uint64
}
