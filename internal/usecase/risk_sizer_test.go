package usecase_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akralex/smc-futures-bot/internal/domain"
	"github.com/akralex/smc-futures-bot/internal/usecase"
)

func TestRiskSizer_HappyPath(t *testing.T) {
	sizer := usecase.NewRiskSizer()

	// (1000 * 5% * 5) / 100 = 2.5, under the max, survives rounding.
	qty, err := sizer.Size(usecase.SizeRequest{
		Balance:           1000,
		RiskPercentage:    5,
		Leverage:          5,
		CurrentPrice:      100,
		MinOrderNotional:  5,
		MaxPositionSize:   10,
		QuantityPrecision: 2,
	})

	require.NoError(t, err)
	assert.Equal(t, 2.5, qty)
}

func TestRiskSizer_MinNotionalRejection(t *testing.T) {
	sizer := usecase.NewRiskSizer()

	// Notional comes out near 0.1, far below the 5 minimum.
	_, err := sizer.Size(usecase.SizeRequest{
		Balance:           100,
		RiskPercentage:    0.1,
		Leverage:          1,
		CurrentPrice:      50000,
		MinOrderNotional:  5,
		MaxPositionSize:   10,
		QuantityPrecision: 3,
	})

	assert.ErrorIs(t, err, domain.ErrInsufficientSize)
}

func TestRiskSizer_RoundingToZeroRejected(t *testing.T) {
	sizer := usecase.NewRiskSizer()

	// Raw quantity 0.0001 rounds to 0 at integer-lot precision.
	_, err := sizer.Size(usecase.SizeRequest{
		Balance:           10,
		RiskPercentage:    1,
		Leverage:          1,
		CurrentPrice:      1000,
		MinOrderNotional:  1,
		MaxPositionSize:   100,
		QuantityPrecision: 0,
	})

	assert.ErrorIs(t, err, domain.ErrInsufficientSize)
}

func TestRiskSizer_MaxPositionSizeCap(t *testing.T) {
	sizer := usecase.NewRiskSizer()

	qty, err := sizer.Size(usecase.SizeRequest{
		Balance:           100000,
		RiskPercentage:    10,
		Leverage:          10,
		CurrentPrice:      100,
		MinOrderNotional:  5,
		MaxPositionSize:   50,
		QuantityPrecision: 2,
	})

	require.NoError(t, err)
	assert.Equal(t, 50.0, qty)
}

func TestRiskSizer_InvalidInputs(t *testing.T) {
	sizer := usecase.NewRiskSizer()

	for _, req := range []usecase.SizeRequest{
		{Balance: 0, RiskPercentage: 5, Leverage: 1, CurrentPrice: 100},
		{Balance: 100, RiskPercentage: 0, Leverage: 1, CurrentPrice: 100},
		{Balance: 100, RiskPercentage: 5, Leverage: 1, CurrentPrice: 0},
	} {
		_, err := sizer.Size(req)
		assert.ErrorIs(t, err, domain.ErrInsufficientSize)
	}
}

func TestRiskSizer_IntegerLotPrecision(t *testing.T) {
	sizer := usecase.NewRiskSizer()

	// Raw quantity 12.5 rounds to the nearest integer lot.
	qty, err := sizer.Size(usecase.SizeRequest{
		Balance:           5000,
		RiskPercentage:    5,
		Leverage:          5,
		CurrentPrice:      100,
		MinOrderNotional:  5,
		MaxPositionSize:   1000,
		QuantityPrecision: 0,
	})

	require.NoError(t, err)
	assert.Equal(t, 13.0, qty)
}
