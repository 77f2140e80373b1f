package broker_test

import (
	"github.com/myrjola/hoerquiz/internal/broker"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestChannelBroker(t *testing.T) {
	type testCase struct {
		name     string
		testFunc func(t *testing.T, b *broker.ChannelBroker[string, string])
	}
	tests := []testCase{
		{
			name: "subscriber receives content",
			testFunc: func(t *testing.T, b *broker.ChannelBroker[string, string]) {
				id := "session-1"
				channel := make(chan string)
				b.Publish(id, channel)
				go func() {
					channel <- "hallo"
					close(channel)
					b.Unpublish(id)
				}()
				received := <-b.Subscribe(id)
				require.NotNil(t, received)
				require.Equal(t, "hallo", <-received)
				_, ok := <-received
				require.False(t, ok, "producer channel should be closed")
			},
		},
		{
			name: "subscribe without producer closes immediately",
			testFunc: func(t *testing.T, b *broker.ChannelBroker[string, string]) {
				received, ok := <-b.Subscribe("nobody")
				require.False(t, ok)
				require.Nil(t, received)
			},
		},
		{
			name: "unpublish removes the channel",
			testFunc: func(t *testing.T, b *broker.ChannelBroker[string, string]) {
				id := "session-2"
				channel := make(chan string, 1)
				b.Publish(id, channel)
				b.Unpublish(id)
				received, ok := <-b.Subscribe(id)
				require.False(t, ok)
				require.Nil(t, received)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := broker.NewChannelBroker[string, string]()
			go b.Start()
			defer b.Stop()
			tt.testFunc(t, b)
		})
	}
}
