// Package broker is the in-process portfolio: accounts, their order books and
// futures positions, and the fee deciders used to cost trades.
package broker

import (
	"errors"
	"fmt"
	"sync"

	"futures-bridge/internal/snapshot"
	"futures-bridge/pkg/config"
	exchange "futures-bridge/pkg/exchanges/common"
	"futures-bridge/pkg/logging"
)

var ErrUnknownAccount = errors.New("no account for type")

var log = logging.For("broker")

// Broker holds one account per account type.
type Broker struct {
	mu          sync.RWMutex
	accounts    map[AccountType]*Account
	initialized bool
}

// New creates a broker with a futures account costed by table.
func New(table config.CommissionTable) *Broker {
	commission := NewCommissionDecider(table)
	return &Broker{
		accounts: map[AccountType]*Account{
			AccountFuture: newAccount(AccountFuture, commission, FuturesTax{}),
		},
	}
}

// Account returns the account for a type.
func (b *Broker) Account(t AccountType) (*Account, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, ok := b.accounts[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, t)
	}
	return a, nil
}

// InitAccount sets the baseline of the futures account. A nil state gives an
// empty baseline; otherwise gateway-reported positions seed the holdings and
// the account balance seeds cash. The order book is kept.
func (b *Broker) InitAccount(state *snapshot.State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initialized = true

	acc := b.accounts[AccountFuture]
	if state == nil {
		acc.reset(0, make(map[string]*Position))
		log.Info("account initialized with empty baseline")
		return
	}

	positions := make(map[string]*Position)
	for key, gp := range state.Positions {
		p, ok := positions[key.OrderBookID]
		if !ok {
			p = &Position{OrderBookID: key.OrderBookID}
			positions[key.OrderBookID] = p
		}
		old := gp.YdPosition
		today := gp.Position - gp.YdPosition
		if today < 0 {
			today = 0
		}
		switch key.Direction {
		case exchange.DirectionLong:
			p.BuyOld, p.BuyToday, p.BuyAvgPrice = old, today, gp.Price
		case exchange.DirectionShort:
			p.SellOld, p.SellToday, p.SellAvgPrice = old, today, gp.Price
		}
	}
	var cash float64
	if state.Account != nil {
		cash = state.Account.Balance
	}
	acc.reset(cash, positions)
	log.WithField("positions", len(positions)).Info("account initialized from gateway snapshot")
}

// Initialized reports whether InitAccount has been called.
func (b *Broker) Initialized() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.initialized
}
