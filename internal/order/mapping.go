package order

import (
	"errors"
	"fmt"

	exchange "futures-bridge/pkg/exchanges/common"
)

// Mapping errors are deployment defects: there is no sensible default.
var (
	ErrUnmappedSide           = errors.New("side has no gateway mapping")
	ErrUnmappedOrderType      = errors.New("order type has no gateway mapping")
	ErrUnmappedPositionEffect = errors.New("position effect has no gateway mapping")
	ErrUnmappedDirection      = errors.New("gateway direction has no side mapping")
	ErrUnmappedOffset         = errors.New("gateway offset has no position effect mapping")
)

var (
	sideToDirection = map[Side]exchange.Direction{
		SideBuy:  exchange.DirectionLong,
		SideSell: exchange.DirectionShort,
	}
	directionToSide = map[exchange.Direction]Side{
		exchange.DirectionLong:  SideBuy,
		exchange.DirectionShort: SideSell,
	}

	typeToPriceType = map[Type]exchange.PriceType{
		TypeLimit:  exchange.PriceTypeLimit,
		TypeMarket: exchange.PriceTypeMarket,
	}
	priceTypeToType = map[exchange.PriceType]Type{
		exchange.PriceTypeLimit:  TypeLimit,
		exchange.PriceTypeMarket: TypeMarket,
	}

	effectToOffset = map[PositionEffect]exchange.Offset{
		EffectOpen:       exchange.OffsetOpen,
		EffectClose:      exchange.OffsetClose,
		EffectCloseToday: exchange.OffsetCloseToday,
	}
	offsetToEffect = map[exchange.Offset]PositionEffect{
		exchange.OffsetOpen:           EffectOpen,
		exchange.OffsetClose:          EffectClose,
		exchange.OffsetCloseToday:     EffectCloseToday,
		exchange.OffsetCloseYesterday: EffectClose,
	}
)

func GatewayDirection(s Side) (exchange.Direction, error) {
	d, ok := sideToDirection[s]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnmappedSide, s)
	}
	return d, nil
}

func SideFromGateway(d exchange.Direction) (Side, error) {
	s, ok := directionToSide[d]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnmappedDirection, d)
	}
	return s, nil
}

func GatewayPriceType(t Type) (exchange.PriceType, error) {
	p, ok := typeToPriceType[t]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnmappedOrderType, t)
	}
	return p, nil
}

func TypeFromGateway(p exchange.PriceType) (Type, error) {
	t, ok := priceTypeToType[p]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnmappedOrderType, p)
	}
	return t, nil
}

func GatewayOffset(e PositionEffect) (exchange.Offset, error) {
	o, ok := effectToOffset[e]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnmappedPositionEffect, e)
	}
	return o, nil
}

// PositionEffectFromGateway maps a gateway offset back. CLOSEYESTERDAY collapses into
// CLOSE since the domain does not distinguish it.
func PositionEffectFromGateway(o exchange.Offset) (PositionEffect, error) {
	e, ok := offsetToEffect[o]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnmappedOffset, o)
	}
	return e, nil
}
