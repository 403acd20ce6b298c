package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boigordo/internal/core/types"
	"boigordo/internal/domain/period"
	"boigordo/internal/infrastructure/storage/postgres"
)

type fakeInvalidator struct {
	months []types.Month
	err    error
}

func (f *fakeInvalidator) InvalidateMonths(_ context.Context, months ...types.Month) error {
	f.months = append(f.months, months...)
	return f.err
}

func TestEventHandler_PeriodChanged(t *testing.T) {
	inv := &fakeInvalidator{}
	h := eventHandler(inv)

	err := h.Handle(context.Background(), &postgres.OutboxMessage{
		EventType: period.EventChanged,
		Payload:   []byte(`{"months":["2024-01","2024-02"],"reason":"record"}`),
	})
	require.NoError(t, err)
	require.Len(t, inv.months, 2)
	assert.Equal(t, "2024-01", inv.months[0].String())
	assert.Equal(t, "2024-02", inv.months[1].String())
}

func TestEventHandler_Errors(t *testing.T) {
	t.Run("bad payload", func(t *testing.T) {
		err := eventHandler(&fakeInvalidator{}).Handle(context.Background(), &postgres.OutboxMessage{
			EventType: period.EventChanged,
			Payload:   []byte(`{`),
		})
		assert.Error(t, err)
	})

	t.Run("bad month", func(t *testing.T) {
		err := eventHandler(&fakeInvalidator{}).Handle(context.Background(), &postgres.OutboxMessage{
			EventType: period.EventChanged,
			Payload:   []byte(`{"months":["January"]}`),
		})
		assert.Error(t, err)
	})

	t.Run("cache failure", func(t *testing.T) {
		inv := &fakeInvalidator{err: errors.New("redis down")}
		err := eventHandler(inv).Handle(context.Background(), &postgres.OutboxMessage{
			EventType: period.EventChanged,
			Payload:   []byte(`{"months":["2024-03"]}`),
		})
		assert.ErrorContains(t, err, "redis down")
	})
}

func TestEventHandler_IgnoresUnknownAndEmpty(t *testing.T) {
	inv := &fakeInvalidator{}
	h := eventHandler(inv)

	require.NoError(t, h.Handle(context.Background(), &postgres.OutboxMessage{EventType: "lot.created", Payload: []byte(`{}`)}))
	require.NoError(t, h.Handle(context.Background(), &postgres.OutboxMessage{EventType: period.EventChanged, Payload: []byte(`{"months":[]}`)}))
	assert.Empty(t, inv.months)
}
