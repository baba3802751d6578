package orders

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusOrdered, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled, StatusFinished} {
		require.True(t, s.Valid(), "expected %q to be valid", s)
	}
	for _, s := range []Status{"", "Pending", "ORDERED", "shipped ", "refunded"} {
		require.False(t, s.Valid(), "expected %q to be invalid", s)
	}
}

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusOrdered, StatusProcessing},
		{StatusOrdered, StatusCancelled},
		{StatusProcessing, StatusShipped},
		{StatusProcessing, StatusCancelled},
		{StatusShipped, StatusDelivered},
		{StatusShipped, StatusCancelled},
		{StatusDelivered, StatusFinished},
	}
	for _, tc := range allowed {
		require.True(t, CanTransition(tc.from, tc.to), "%s -> %s should be allowed", tc.from, tc.to)
	}

	forbidden := []struct{ from, to Status }{
		{StatusOrdered, StatusDelivered},
		{StatusShipped, StatusOrdered},
		{StatusFinished, StatusOrdered},
		{StatusFinished, StatusCancelled},
		{StatusCancelled, StatusOrdered},
		{StatusDelivered, StatusCancelled},
	}
	for _, tc := range forbidden {
		require.False(t, CanTransition(tc.from, tc.to), "%s -> %s should be forbidden", tc.from, tc.to)
	}
}

func TestTerminalStatuses(t *testing.T) {
	require.True(t, StatusFinished.Terminal())
	require.True(t, StatusCancelled.Terminal())
	require.False(t, StatusOrdered.Terminal())
	require.False(t, StatusDelivered.Terminal())
}
