package lot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boigordo/internal/core/apperror"
	"boigordo/internal/core/entity"
	"boigordo/internal/core/types"
)

func newLot() *Lot {
	yield := types.MustMoney("52")
	return &Lot{
		BaseEntity:      entity.NewBaseEntity(),
		Code:            "LOT-001",
		PurchaseDate:    time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		HeadCount:       100,
		PurchaseWeight:  types.MustMoney("45000"),
		CarcassYield:    &yield,
		PricePerArroba:  types.MustMoney("300"),
		CurrentQuantity: 100,
		Status:          StatusConfirmed,
	}
}

func TestComputePurchaseValue_UsesStoredYield(t *testing.T) {
	l := newLot()
	// 45000 kg × 52% = 23400 kg = 1560 @ × 300
	assert.Equal(t, "468000", l.ComputePurchaseValue(DefaultCarcassYield).String())
}

func TestComputePurchaseValue_FallbackOnlyWithoutYield(t *testing.T) {
	l := newLot()
	l.CarcassYield = nil
	// 45000 × 50% / 15 × 300
	assert.Equal(t, "450000", l.ComputePurchaseValue(DefaultCarcassYield).String())
	assert.Equal(t, "459000", l.ComputePurchaseValue(types.MustMoney("51")).String())
}

func TestStatus_Transitions(t *testing.T) {
	l := newLot()
	require.NoError(t, l.TransitionTo(StatusReceived))
	require.NoError(t, l.TransitionTo(StatusConfined))

	err := l.TransitionTo(StatusConfirmed)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidTransition))

	require.NoError(t, l.TransitionTo(StatusSold))
	require.NoError(t, l.TransitionTo(StatusClosed))
	assert.False(t, l.IsOpen())
	assert.Error(t, l.TransitionTo(StatusSold))
}

func TestAdjustQuantity_Clamps(t *testing.T) {
	l := newLot()
	assert.Equal(t, -2, l.AdjustQuantity(-2))
	assert.Equal(t, 98, l.CurrentQuantity)

	assert.Equal(t, -98, l.AdjustQuantity(-500))
	assert.Equal(t, 0, l.CurrentQuantity)

	assert.Equal(t, 100, l.AdjustQuantity(1000))
	assert.Equal(t, 100, l.CurrentQuantity, "never above head count")
}

func TestLot_Validate(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, newLot().Validate(ctx))

	l := newLot()
	l.HeadCount = 0
	assert.Error(t, l.Validate(ctx))

	l = newLot()
	bad := types.MustMoney("120")
	l.CarcassYield = &bad
	assert.Error(t, l.Validate(ctx))

	l = newLot()
	l.Code = " "
	assert.Error(t, l.Validate(ctx))
}
