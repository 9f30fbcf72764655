package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exchange "futures-bridge/pkg/exchanges/common"
)

func TestSideMappingRoundTrip(t *testing.T) {
	for _, s := range []Side{SideBuy, SideSell} {
		d, err := GatewayDirection(s)
		require.NoError(t, err)
		back, err := SideFromGateway(d)
		require.NoError(t, err)
		assert.Equal(t, s, back)
	}
}

func TestOffsetMapping(t *testing.T) {
	tests := []struct {
		effect PositionEffect
		offset exchange.Offset
	}{
		{EffectOpen, exchange.OffsetOpen},
		{EffectClose, exchange.OffsetClose},
		{EffectCloseToday, exchange.OffsetCloseToday},
	}
	for _, tt := range tests {
		t.Run(string(tt.effect), func(t *testing.T) {
			got, err := GatewayOffset(tt.effect)
			require.NoError(t, err)
			assert.Equal(t, tt.offset, got)

			back, err := PositionEffectFromGateway(got)
			require.NoError(t, err)
			assert.Equal(t, tt.effect, back)
		})
	}

	e, err := PositionEffectFromGateway(exchange.OffsetCloseYesterday)
	require.NoError(t, err)
	assert.Equal(t, EffectClose, e)
}

func TestUnmappedKeysFail(t *testing.T) {
	_, err := GatewayDirection(Side("HOLD"))
	assert.ErrorIs(t, err, ErrUnmappedSide)

	_, err = SideFromGateway(exchange.Direction("NET"))
	assert.ErrorIs(t, err, ErrUnmappedDirection)

	_, err = GatewayPriceType(Type("STOP"))
	assert.ErrorIs(t, err, ErrUnmappedOrderType)

	_, err = TypeFromGateway(exchange.PriceTypeFAK)
	assert.ErrorIs(t, err, ErrUnmappedOrderType)

	_, err = GatewayOffset(PositionEffect("EXERCISE"))
	assert.ErrorIs(t, err, ErrUnmappedPositionEffect)

	_, err = PositionEffectFromGateway(exchange.Offset(""))
	assert.ErrorIs(t, err, ErrUnmappedOffset)
}
