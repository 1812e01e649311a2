package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	testCases := []struct {
		from, to OrderStatus
		ok       bool
	}{
		{OrderStatusPending, OrderStatusTriggered, true},
		{OrderStatusPending, OrderStatusCanceled, true},
		{OrderStatusTriggered, OrderStatusExecuting, true},
		{OrderStatusExecuting, OrderStatusCompleted, true},
		{OrderStatusExecuting, OrderStatusFailed, true},
		{OrderStatusFailed, OrderStatusPending, true},
		{OrderStatusPending, OrderStatusExecuting, false},
		{OrderStatusPending, OrderStatusCompleted, false},
		{OrderStatusTriggered, OrderStatusCanceled, false},
		{OrderStatusExecuting, OrderStatusCanceled, false},
		{OrderStatusCompleted, OrderStatusPending, false},
		{OrderStatusCanceled, OrderStatusPending, false},
		{OrderStatusCompleted, OrderStatusFailed, false},
	}

	for _, tc := range testCases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to))
		})
	}
}

func TestShouldTrigger(t *testing.T) {
	pos := &Position{EntryPrice: 20000, CurrentPrice: 7000, HighestPrice: 20000, LowestPrice: 7000, Flag: 1}

	testCases := []struct {
		desc  string
		order Order
		want  bool
	}{
		{"stop loss at exactly -65%", Order{TriggerType: TriggerTypeGain, TriggerOp: TriggerOpLTE, TriggerValue: -65}, true},
		{"stop loss deeper than current", Order{TriggerType: TriggerTypeGain, TriggerOp: TriggerOpLTE, TriggerValue: -70}, false},
		{"gain above", Order{TriggerType: TriggerTypeGain, TriggerOp: TriggerOpGTE, TriggerValue: 100}, false},
		{"price reached", Order{TriggerType: TriggerTypePrice, TriggerOp: TriggerOpGTE, TriggerValue: 7000}, true},
		{"price not reached", Order{TriggerType: TriggerTypePrice, TriggerOp: TriggerOpGTE, TriggerValue: 7001}, false},
		{"flag set", Order{TriggerType: TriggerTypeFlag, TriggerOp: TriggerOpEQ, TriggerValue: 1}, true},
		{"flag unset", Order{TriggerType: TriggerTypeFlag, TriggerOp: TriggerOpEQ, TriggerValue: 0}, false},
		{"immediate", Order{TriggerType: TriggerTypeImmediate}, true},
		{"unknown", Order{TriggerType: "other"}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.order.ShouldTrigger(pos))
		})
	}
}

func TestOrderValidate(t *testing.T) {
	testCases := []struct {
		desc  string
		order Order
		err   error
	}{
		{"valid stop loss", Order{OrderType: OrderTypeStopLoss, Ratio: 100, TriggerType: TriggerTypeGain, TriggerOp: TriggerOpLTE, TriggerValue: -65}, nil},
		{"valid flag sell", Order{OrderType: OrderTypeFlagSell, Ratio: 30, TriggerType: TriggerTypeFlag, TriggerOp: TriggerOpEQ, TriggerValue: 1}, nil},
		{"buy ignores ratio", Order{OrderType: OrderTypeBuy, TriggerType: TriggerTypeImmediate}, nil},
		{"zero ratio", Order{OrderType: OrderTypeTakeProfit, Ratio: 0, TriggerType: TriggerTypeGain, TriggerOp: TriggerOpGTE, TriggerValue: 100}, ErrInvalidRatio},
		{"ratio over 100", Order{OrderType: OrderTypeTakeProfit, Ratio: 150, TriggerType: TriggerTypeGain, TriggerOp: TriggerOpGTE, TriggerValue: 100}, ErrInvalidRatio},
		{"eq on gain", Order{OrderType: OrderTypeTakeProfit, Ratio: 50, TriggerType: TriggerTypeGain, TriggerOp: TriggerOpEQ, TriggerValue: 100}, ErrInvalidTrigger},
		{"eq on price", Order{OrderType: OrderTypeTakeProfit, Ratio: 50, TriggerType: TriggerTypePrice, TriggerOp: TriggerOpEQ, TriggerValue: 100}, ErrInvalidTrigger},
		{"non integer flag", Order{OrderType: OrderTypeFlagSell, Ratio: 50, TriggerType: TriggerTypeFlag, TriggerOp: TriggerOpEQ, TriggerValue: 0.5}, ErrInvalidTrigger},
		{"non positive price", Order{OrderType: OrderTypeTakeProfit, Ratio: 50, TriggerType: TriggerTypePrice, TriggerOp: TriggerOpGTE, TriggerValue: 0}, ErrInvalidTrigger},
		{"unknown trigger", Order{OrderType: OrderTypeTakeProfit, Ratio: 50, TriggerType: "volume", TriggerOp: TriggerOpGTE}, ErrInvalidTrigger},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			err := tc.order.Validate()
			if tc.err == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func TestRetryBackoff(t *testing.T) {
	base := 30 * time.Second
	assert.Equal(t, base, RetryBackoff(base, 0))
	assert.Equal(t, base, RetryBackoff(base, 1))
	assert.Equal(t, 2*base, RetryBackoff(base, 2))
	assert.Equal(t, 4*base, RetryBackoff(base, 3))
}
