package ledger

import (
	"strings"

	"github.com/pkg/errors"

	"tradecore/internal/model"
)

// dust absorbs float rounding when a debit consumes a balance exactly.
const dust = 1e-9

// Wallet is a virtual multi-currency balance sheet. Balances never go negative:
// every mutation is validated in full before any currency is touched.
type Wallet struct {
	balances map[string]float64
}

// NewWallet copies initial into a new wallet. Currency codes are upper-cased.
func NewWallet(initial map[string]float64) (*Wallet, error) {
	w := &Wallet{balances: make(map[string]float64, len(initial))}
	for cur, amt := range initial {
		if amt < 0 {
			return nil, errors.Errorf("negative initial balance for %s: %f", cur, amt)
		}
		w.balances[strings.ToUpper(cur)] = amt
	}
	return w, nil
}

// Balance returns the balance of cur, zero if never held.
func (w *Wallet) Balance(cur string) float64 {
	return w.balances[strings.ToUpper(cur)]
}

// Apply adds every delta atomically. If any resulting balance would be
// negative, nothing changes and ErrInsufficientBalance is returned.
func (w *Wallet) Apply(deltas map[string]float64) error {
	next := make(map[string]float64, len(deltas))
	for cur, d := range deltas {
		cur = strings.ToUpper(cur)
		v := w.balances[cur] + d
		if v < 0 {
			if v > -dust {
				v = 0
			} else {
				return errors.Wrapf(model.ErrInsufficientBalance,
					"%s balance %f cannot cover %f", cur, w.balances[cur], -d)
			}
		}
		next[cur] = v
	}
	for cur, v := range next {
		w.balances[cur] = v
	}
	return nil
}

// Set overwrites a single balance. Negative amounts are rejected.
func (w *Wallet) Set(cur string, amt float64) error {
	if amt < 0 {
		return errors.Errorf("negative balance for %s: %f", cur, amt)
	}
	w.balances[strings.ToUpper(cur)] = amt
	return nil
}

// Snapshot returns a copy of all balances.
func (w *Wallet) Snapshot() map[string]float64 {
	out := make(map[string]float64, len(w.balances))
	for cur, amt := range w.balances {
		out[cur] = amt
	}
	return out
}
