package model

import "time"

var zeroTime = time.Unix(0, 0).UTC()

type countSink struct {
	candles int
	fills   int
}

func (c *countSink) CandleClosed(string, time.Duration, Candle) { c.candles++ }
func (c *countSink) Filled(Fill)                                { c.fills++ }
