package gateway

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"futures-bridge/pkg/exchanges/bridge"
	exchange "futures-bridge/pkg/exchanges/common"
	"futures-bridge/pkg/exchanges/paper"
)

// ErrUnsupportedGateway is returned for gateway types the bridge cannot drive.
var ErrUnsupportedGateway = errors.New("unsupported gateway type")

// supported lists the gateway types the bridge knows how to drive.
var supported = map[string]bool{
	"CTP": true,
}

// FactoryConfig selects and configures the gateway implementation.
type FactoryConfig struct {
	DryRun      bool
	GatewayType string
	BridgeURL   string
	RateLimit   float64

	PaperSymbols      []string
	PaperExchange     string
	PaperBalance      float64
	PaperFillDelay    time.Duration
	PaperTickInterval time.Duration
}

// NewGateway returns the paper gateway for dry runs, otherwise a bridge client
// for the configured gateway type.
func NewGateway(cfg FactoryConfig) (exchange.Gateway, error) {
	if cfg.DryRun {
		return paper.New(paper.Config{
			Symbols:      cfg.PaperSymbols,
			Exchange:     cfg.PaperExchange,
			Balance:      cfg.PaperBalance,
			FillDelay:    cfg.PaperFillDelay,
			TickInterval: cfg.PaperTickInterval,
		}), nil
	}

	typ := strings.ToUpper(cfg.GatewayType)
	if !supported[typ] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedGateway, cfg.GatewayType)
	}
	if cfg.BridgeURL == "" {
		return nil, fmt.Errorf("gateway %s: bridge url is required", typ)
	}
	return bridge.New(bridge.Config{
		URL:       cfg.BridgeURL,
		Gateway:   typ,
		RateLimit: cfg.RateLimit,
	}), nil
}
