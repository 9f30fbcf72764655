package bridge

import (
	"encoding/json"
	"fmt"

	exchange "futures-bridge/pkg/exchanges/common"
)

// Outbound operations understood by the bridge.
const (
	opConnect       = "connect"
	opSendOrder     = "send_order"
	opCancelOrder   = "cancel_order"
	opSubscribe     = "subscribe"
	opQueryAccount  = "query_account"
	opQueryPosition = "query_position"
)

const (
	frameReply  = "reply"
	frameStatus = "status"
)

type request struct {
	ID   string `json:"id"`
	Op   string `json:"op"`
	Data any    `json:"data,omitempty"`
}

type inbound struct {
	Type   string          `json:"type"`
	ID     string          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type reply struct {
	result json.RawMessage
	err    string
}

type connectData struct {
	Gateway  string            `json:"gateway"`
	Settings exchange.Settings `json:"settings"`
}

type sendOrderResult struct {
	GatewayOrderID string `json:"vtOrderID"`
}

type channelStatus struct {
	MD bool `json:"md"`
	TD bool `json:"td"`
}

// decodeEvent turns a push frame into its typed gateway event.
func decodeEvent(typ string, data json.RawMessage) (exchange.Event, error) {
	switch exchange.EventKind(typ) {
	case exchange.KindContract:
		var v exchange.Contract
		err := json.Unmarshal(data, &v)
		return exchange.ContractEvent{Contract: v}, err
	case exchange.KindOrder:
		var v exchange.OrderEcho
		err := json.Unmarshal(data, &v)
		return exchange.OrderEvent{Order: v}, err
	case exchange.KindTrade:
		var v exchange.TradeFill
		err := json.Unmarshal(data, &v)
		return exchange.TradeEvent{Trade: v}, err
	case exchange.KindTick:
		var v exchange.Tick
		err := json.Unmarshal(data, &v)
		return exchange.TickEvent{Tick: v}, err
	case exchange.KindPosition:
		var v exchange.Position
		err := json.Unmarshal(data, &v)
		return exchange.PositionEvent{Position: v}, err
	case exchange.KindAccount:
		var v exchange.Account
		err := json.Unmarshal(data, &v)
		return exchange.AccountEvent{Account: v}, err
	case exchange.KindLog:
		var v exchange.LogLine
		err := json.Unmarshal(data, &v)
		return exchange.LogEvent{Log: v}, err
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, typ)
	}
}
