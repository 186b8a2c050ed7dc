package sinks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/media-archiver/internal/progress"
	"github.com/JakeFAU/media-archiver/internal/publisher/memory"
)

func TestBrokerSinkPublishesWireFormat(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	sink, err := NewBrokerSink(pub, BrokerConfig{Topic: "archiver-events"})
	require.NoError(t, err)

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		submitted("r1", baseTime),
		downloading("r1", "a.webm", 10, baseTime),
		completed("r1", "k1", baseTime),
	}))

	msgs := pub.Messages()
	// Submitted stays in-process.
	require.Len(t, msgs, 2)
	require.Equal(t, "archiver-events", msgs[0].Topic)
	require.Equal(t, "DOWNLOADING", msgs[0].Attrs["status"])
	require.Equal(t, "r1", msgs[0].Attrs["req_id"])
	require.Equal(t, "k1", msgs[1].Attrs["key"])
	require.JSONEq(t,
		`{"status":"COMPLETED","req_id":"r1","pretty_name":"Lecture k1","key":"k1","path":"/downloads/k1"}`,
		string(msgs[1].Data))
	require.NoError(t, sink.Close(context.Background()))
}

func TestBrokerSinkPerStatusSubjects(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	sink, err := NewBrokerSink(pub, BrokerConfig{Topic: "archiver.events", PerStatus: true})
	require.NoError(t, err)

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		progress.Failed{ReqID: "r1", Msg: "boom", At: baseTime},
		progress.Deleted{Key: "k1", At: baseTime},
	}))
	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "archiver.events.error", msgs[0].Topic)
	require.Equal(t, "archiver.events.deleted", msgs[1].Topic)
}

func TestBrokerSinkErrors(t *testing.T) {
	t.Parallel()

	_, err := NewBrokerSink(nil, BrokerConfig{Topic: "t"})
	require.Error(t, err)
	_, err = NewBrokerSink(memory.New(), BrokerConfig{})
	require.Error(t, err)

	pub := memory.New()
	boom := errors.New("broker down")
	pub.FailWith(boom)
	sink, err := NewBrokerSink(pub, BrokerConfig{Topic: "t"})
	require.NoError(t, err)
	err = sink.Consume(context.Background(), []progress.Event{progress.Deleted{Key: "k1", At: baseTime}})
	require.ErrorIs(t, err, boom)
}
