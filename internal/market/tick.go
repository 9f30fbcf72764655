// Package market normalizes gateway ticks and buffers them for the strategy-side
// consumer.
package market

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"futures-bridge/internal/instrument"
	exchange "futures-bridge/pkg/exchanges/common"
)

var ErrBadTimestamp = errors.New("tick timestamp not parseable")

// Levels is the depth of the bid/ask ladders.
const Levels = 5

// Tick is the canonical market data record. Values the gateway did not supply
// are NaN, never zero.
type Tick struct {
	OrderBookID string
	Datetime    time.Time

	Open      float64
	High      float64
	Low       float64
	Last      float64
	PrevClose float64

	Volume         float64
	TotalTurnover  float64
	OpenInterest   float64
	PrevSettlement float64

	LimitUp   float64
	LimitDown float64

	BidPrices  [Levels]float64
	BidVolumes [Levels]float64
	AskPrices  [Levels]float64
	AskVolumes [Levels]float64
}

// Time of day is "15:04:05"; a trailing fraction (".5", ".500") is accepted by
// the parser without a layout of its own.
var dateLayouts = []string{"20060102", "2006-01-02"}

// Normalize converts a gateway tick into the canonical record.
func Normalize(raw exchange.Tick) (Tick, error) {
	id, err := instrument.OrderBookID(raw.Symbol)
	if err != nil {
		return Tick{}, err
	}
	ts, err := parseDatetime(raw.Date, raw.Time)
	if err != nil {
		return Tick{}, err
	}

	t := Tick{
		OrderBookID:    id,
		Datetime:       ts,
		Open:           value(raw.OpenPrice),
		High:           value(raw.HighPrice),
		Low:            value(raw.LowPrice),
		Last:           value(raw.LastPrice),
		PrevClose:      value(raw.PreClosePrice),
		Volume:         value(raw.Volume),
		TotalTurnover:  math.NaN(),
		OpenInterest:   value(raw.OpenInterest),
		PrevSettlement: math.NaN(),
		LimitUp:        value(raw.UpperLimit),
		LimitDown:      value(raw.LowerLimit),
	}
	t.BidPrices = ladder(raw.BidPrices)
	t.BidVolumes = ladder(raw.BidVolumes)
	t.AskPrices = ladder(raw.AskPrices)
	t.AskVolumes = ladder(raw.AskVolumes)
	return t, nil
}

func parseDatetime(date, clock string) (time.Time, error) {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	for _, dl := range dateLayouts {
		if ts, err := time.ParseInLocation(dl+" 15:04:05", date+" "+clock, time.Local); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q %q", ErrBadTimestamp, date, clock)
}

func value(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

func ladder(in [Levels]*float64) [Levels]float64 {
	var out [Levels]float64
	for i, p := range in {
		out[i] = value(p)
	}
	return out
}
