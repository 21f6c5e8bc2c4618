package model

import (
	"encoding/json"
	"time"
)

// Side is the direction of an order leg.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Execution is what an executor actually filled. Amount and Price may differ
// from the request (slippage, partial fills).
type Execution struct {
	Amount float64 `json:"amount"`
	Price  float64 `json:"price"`
}

// Cost returns Amount*Price in quote currency.
func (e Execution) Cost() float64 { return e.Amount * e.Price }

// Fill records one executed order leg for journals and sinks.
type Fill struct {
	OrderID   string    `json:"order_id"`
	Strategy  string    `json:"strategy"`
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	Requested float64   `json:"requested"` // requested base quantity
	Amount    float64   `json:"amount"`    // executed base quantity
	Price     float64   `json:"price"`     // executed price
	Signal    float64   `json:"signal"`    // price that triggered the order
	Reason    string    `json:"reason"`
	TS        time.Time `json:"ts"`
}

// Slippage returns executed minus signal price (positive = paid more on a buy).
func (f Fill) Slippage() float64 {
	if f.Signal == 0 {
		return 0
	}
	return f.Price - f.Signal
}

// JSON returns the JSON-encoded fill.
func (f *Fill) JSON() []byte {
	b, _ := json.Marshal(f)
	return b
}
