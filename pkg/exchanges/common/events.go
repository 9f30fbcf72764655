package common

// EventKind names one case of the gateway event variant.
type EventKind string

const (
	KindContract EventKind = "contract"
	KindOrder    EventKind = "order"
	KindTrade    EventKind = "trade"
	KindTick     EventKind = "tick"
	KindPosition EventKind = "position"
	KindAccount  EventKind = "account"
	KindLog      EventKind = "log"
)

// Event is a gateway push. The set of implementations is closed: only the types in
// this file satisfy it.
type Event interface {
	Kind() EventKind
	sealed()
}

type ContractEvent struct{ Contract Contract }
type OrderEvent struct{ Order OrderEcho }
type TradeEvent struct{ Trade TradeFill }
type TickEvent struct{ Tick Tick }
type PositionEvent struct{ Position Position }
type AccountEvent struct{ Account Account }
type LogEvent struct{ Log LogLine }

func (ContractEvent) Kind() EventKind { return KindContract }
func (OrderEvent) Kind() EventKind    { return KindOrder }
func (TradeEvent) Kind() EventKind    { return KindTrade }
func (TickEvent) Kind() EventKind     { return KindTick }
func (PositionEvent) Kind() EventKind { return KindPosition }
func (AccountEvent) Kind() EventKind  { return KindAccount }
func (LogEvent) Kind() EventKind      { return KindLog }

func (ContractEvent) sealed() {}
func (OrderEvent) sealed()    {}
func (TradeEvent) sealed()    {}
func (TickEvent) sealed()     {}
func (PositionEvent) sealed() {}
func (AccountEvent) sealed()  {}
func (LogEvent) sealed()      {}
