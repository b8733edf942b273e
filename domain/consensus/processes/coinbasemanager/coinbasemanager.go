package coinbasemanager

import (
	"github.com/pkg/errors"
	"github.com/prism-dag/prismd/domain/consensus/model"
	"github.com/prism-dag/prismd/domain/consensus/model/externalapi"
	"github.com/prism-dag/prismd/domain/consensus/ruleerrors"
)

// coinbaseTransactionIndex is the index of the coinbase transaction in every transaction block
const coinbaseTransactionIndex = 0

type coinbaseManager struct {
	coinbaseReward uint64
}

// New instantiates a new CoinbaseManager
func New(coinbaseReward uint64) model.CoinbaseManager {
	return &coinbaseManager{
		coinbaseReward: coinbaseReward,
	}
}

// CoinbaseReward returns the most a coinbase transaction may create
func (c *coinbaseManager) CoinbaseReward() uint64 {
	return c.coinbaseReward
}

// ValidateCoinbase checks that the first transaction of a transaction block
// is its only coinbase and doesn't pay more than the reward
func (c *coinbaseManager) ValidateCoinbase(content *externalapi.TransactionContent) error {
	if len(content.Transactions) == 0 {
		return errors.Wrapf(ruleerrors.ErrInvalidCoinbase, "transaction block does not contain "+
			"any transactions")
	}

	coinbase := content.Transactions[coinbaseTransactionIndex]
	if !coinbase.IsCoinbase() {
		return errors.Wrapf(ruleerrors.ErrInvalidCoinbase, "first transaction in "+
			"block is not a coinbase")
	}

	for i, tx := range content.Transactions[coinbaseTransactionIndex+1:] {
		if tx.HasNullInput() {
			return errors.Wrapf(ruleerrors.ErrInvalidCoinbase, "block contains second coinbase at "+
				"index %d", i+coinbaseTransactionIndex+1)
		}
	}

	reward, ok := coinbase.TotalOutputValue()
	if !ok {
		return errors.Wrapf(ruleerrors.ErrInvalidCoinbase, "coinbase output value overflows")
	}
	if reward > c.coinbaseReward {
		return errors.Wrapf(ruleerrors.ErrInvalidCoinbase, "coinbase pays %d, which is more than "+
			"the reward of %d", reward, c.coinbaseReward)
	}
	return nil
}
