package notify

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDispatcher_Subscribe(t *testing.T) {
	tests := []struct {
		name   string
		topics []string
	}{
		{name: "single topic", topics: []string{"a1", "a1"}},
		{name: "many topics", topics: []string{"a1", "a2", "a3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			disp := NewDispatcher(zap.L())
			var cancels []CancelFn
			for _, topic := range tt.topics {
				cancels = append(cancels, disp.Subscribe(topic, func(eventData []byte) {}))
			}
			total := 0
			for _, subs := range disp.subscribes {
				total += len(subs)
			}
			require.Equal(t, len(tt.topics), total)

			for _, cancel := range cancels {
				cancel()
				cancel()
			}
			require.Equal(t, 0, len(disp.subscribes))
		})
	}
}

func TestDispatcher_BroadcastOnlyToTopic(t *testing.T) {
	disp := NewDispatcher(zap.L())
	var got []Event
	disp.Subscribe("a1", func(eventData []byte) {
		var e Event
		require.NoError(t, json.Unmarshal(eventData, &e))
		got = append(got, e)
	})
	other := 0
	disp.Subscribe("a2", func(eventData []byte) { other++ })

	disp.Broadcast("a1", EventBidAccepted, map[string]string{"amount": "100"})

	require.Len(t, got, 1)
	require.Equal(t, "a1", got[0].Topic)
	require.Equal(t, EventBidAccepted, got[0].Type)
	require.Equal(t, 0, other)
}

func TestDispatcher_UnsubscribeDuringBroadcast(t *testing.T) {
	disp := NewDispatcher(zap.L())
	calls := 0
	var cancelSelf CancelFn
	cancelSelf = disp.Subscribe("a1", func(eventData []byte) {
		calls++
		cancelSelf()
	})
	disp.Subscribe("a1", func(eventData []byte) { calls++ })
	disp.Subscribe("a1", func(eventData []byte) { panic("broken subscriber") })

	disp.Broadcast("a1", EventSettlementCompleted, nil)
	require.Equal(t, 2, calls)
	require.Equal(t, 2, disp.Subscribers("a1"))

	disp.Broadcast("a1", EventSettlementCompleted, nil)
	require.Equal(t, 3, calls)
}
