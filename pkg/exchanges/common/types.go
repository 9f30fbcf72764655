package common

import "time"

// Direction is the gateway-native order direction.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// PriceType is the gateway-native order price type.
type PriceType string

const (
	PriceTypeLimit  PriceType = "LIMIT"
	PriceTypeMarket PriceType = "MARKET"
	PriceTypeFAK    PriceType = "FAK"
	PriceTypeFOK    PriceType = "FOK"
)

// Offset is the gateway-native open/close flag.
type Offset string

const (
	OffsetOpen           Offset = "OPEN"
	OffsetClose          Offset = "CLOSE"
	OffsetCloseToday     Offset = "CLOSETODAY"
	OffsetCloseYesterday Offset = "CLOSEYESTERDAY"
)

// Status is the gateway-native order status.
type Status string

const (
	StatusNotTraded  Status = "NOTTRADED"
	StatusPartTraded Status = "PARTTRADED"
	StatusAllTraded  Status = "ALLTRADED"
	StatusCancelled  Status = "CANCELLED"
	StatusRejected   Status = "REJECTED"
	StatusUnknown    Status = "UNKNOWN"
)

// Currency of requests routed through the gateway.
type Currency string

const CurrencyCNY Currency = "CNY"

// Product is the gateway product class.
type Product string

const (
	ProductFutures Product = "FUTURES"
	ProductOption  Product = "OPTION"
)

// Contract is the instrument metadata pushed by the gateway.
type Contract struct {
	Symbol      string  `json:"symbol"`
	Exchange    string  `json:"exchange"`
	Name        string  `json:"name"`
	ProductType Product `json:"productClass"`
	Size        float64 `json:"size"`
	PriceTick   float64 `json:"priceTick"`
}

// OrderEcho is the gateway's view of an order. GatewayOrderID is the key used by
// every other order/trade event; OrderID, SessionID and FrontID are what the venue
// needs to cancel it.
type OrderEcho struct {
	GatewayOrderID string    `json:"vtOrderID"`
	OrderID        string    `json:"orderID"`
	SessionID      int       `json:"sessionID"`
	FrontID        int       `json:"frontID"`
	Symbol         string    `json:"symbol"`
	Exchange       string    `json:"exchange"`
	Direction      Direction `json:"direction"`
	Offset         Offset    `json:"offset"`
	Price          float64   `json:"price"`
	TotalVolume    float64   `json:"totalVolume"`
	TradedVolume   float64   `json:"tradedVolume"`
	Status         Status    `json:"status"`
	OrderTime      string    `json:"orderTime"`
	CancelTime     string    `json:"cancelTime"`
}

// TradeFill is a single execution reported by the gateway.
type TradeFill struct {
	TradeID        string    `json:"vtTradeID"`
	GatewayOrderID string    `json:"vtOrderID"`
	Symbol         string    `json:"symbol"`
	Exchange       string    `json:"exchange"`
	Direction      Direction `json:"direction"`
	Offset         Offset    `json:"offset"`
	Price          float64   `json:"price"`
	Volume         float64   `json:"volume"`
	TradeTime      time.Time `json:"tradeTime"`
}

// Tick is the raw market data snapshot. Numeric fields the gateway may omit are
// pointers so that absence can be told apart from zero.
type Tick struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
	Date     string `json:"date"`
	Time     string `json:"time"`

	LastPrice     *float64 `json:"lastPrice"`
	OpenPrice     *float64 `json:"openPrice"`
	HighPrice     *float64 `json:"highPrice"`
	LowPrice      *float64 `json:"lowPrice"`
	PreClosePrice *float64 `json:"preClosePrice"`
	Volume        *float64 `json:"volume"`
	OpenInterest  *float64 `json:"openInterest"`
	UpperLimit    *float64 `json:"upperLimit"`
	LowerLimit    *float64 `json:"lowerLimit"`

	BidPrices  [5]*float64 `json:"bidPrices"`
	BidVolumes [5]*float64 `json:"bidVolumes"`
	AskPrices  [5]*float64 `json:"askPrices"`
	AskVolumes [5]*float64 `json:"askVolumes"`
}

// Position is a position snapshot for one instrument and direction.
type Position struct {
	Symbol      string    `json:"symbol"`
	Exchange    string    `json:"exchange"`
	Direction   Direction `json:"direction"`
	Position    float64   `json:"position"`
	Frozen      float64   `json:"frozen"`
	YdPosition  float64   `json:"ydPosition"`
	Price       float64   `json:"price"`
	PositionPnL float64   `json:"positionProfit"`
}

// Account is the account-level balance snapshot.
type Account struct {
	AccountID      string  `json:"accountID"`
	PreBalance     float64 `json:"preBalance"`
	Balance        float64 `json:"balance"`
	Available      float64 `json:"available"`
	Commission     float64 `json:"commission"`
	Margin         float64 `json:"margin"`
	CloseProfit    float64 `json:"closeProfit"`
	PositionProfit float64 `json:"positionProfit"`
}

// LogLine is a diagnostic message emitted by the gateway.
type LogLine struct {
	Time    string `json:"logTime"`
	Content string `json:"logContent"`
}

// OrderRequest captures an order to be routed to the gateway.
type OrderRequest struct {
	Symbol      string    `json:"symbol"`
	Exchange    string    `json:"exchange"`
	Price       float64   `json:"price"`
	Volume      float64   `json:"volume"`
	Direction   Direction `json:"direction"`
	PriceType   PriceType `json:"priceType"`
	Offset      Offset    `json:"offset"`
	Currency    Currency  `json:"currency"`
	ProductType Product   `json:"productClass"`
}

// CancelRequest carries the native identifiers echoed by the gateway.
type CancelRequest struct {
	Symbol    string `json:"symbol"`
	Exchange  string `json:"exchange"`
	OrderID   string `json:"orderID"`
	SessionID int    `json:"sessionID"`
	FrontID   int    `json:"frontID"`
}

// SubscribeRequest asks the gateway for market data on one contract.
type SubscribeRequest struct {
	Symbol      string   `json:"symbol"`
	Exchange    string   `json:"exchange"`
	Currency    Currency `json:"currency"`
	ProductType Product  `json:"productClass"`
}

// Settings are the gateway-specific connection parameters (broker id, user,
// password, front addresses...). Keys are passed through untouched.
type Settings map[string]string
