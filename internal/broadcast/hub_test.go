package broadcast

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeObserver struct {
	id     string
	err    error
	mu     sync.Mutex
	got    [][]byte
	closed bool
}

func (f *fakeObserver) ID() string { return f.id }

func (f *fakeObserver) Send(msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.got = append(f.got, msg)
	return nil
}

func (f *fakeObserver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestHubBroadcastDeliversToAll(t *testing.T) {
	t.Parallel()

	var sizes []int
	hub := NewHub(WithSizeHook(func(n int) { sizes = append(sizes, n) }))
	a, b := &fakeObserver{id: "a"}, &fakeObserver{id: "b"}
	hub.Add(a)
	hub.Add(b)

	require.Equal(t, 2, hub.Broadcast([]byte("hello")))
	require.Equal(t, [][]byte{[]byte("hello")}, a.got)
	require.Equal(t, [][]byte{[]byte("hello")}, b.got)
	require.Equal(t, []int{1, 2}, sizes)
}

func TestHubDropsFailingObserver(t *testing.T) {
	t.Parallel()

	failures := 0
	hub := NewHub(WithFailureHook(func() { failures++ }))
	good := &fakeObserver{id: "good"}
	slow := &fakeObserver{id: "slow", err: ErrSlowObserver}
	gone := &fakeObserver{id: "gone", err: errors.New("broken pipe")}
	hub.Add(good)
	hub.Add(slow)
	hub.Add(gone)

	require.Equal(t, 1, hub.Broadcast([]byte("m1")))
	require.Equal(t, 1, hub.Len())
	require.Equal(t, 2, failures)
	require.True(t, slow.closed)
	require.True(t, gone.closed)

	require.Equal(t, 1, hub.Broadcast([]byte("m2")))
	require.Len(t, good.got, 2)
}

func TestHubRemoveAndCloseAll(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	a := &fakeObserver{id: "a"}
	hub.Add(a)
	require.True(t, hub.Remove("a"))
	require.False(t, hub.Remove("a"))
	require.Zero(t, hub.Broadcast([]byte("x")))
	require.Empty(t, a.got)

	b := &fakeObserver{id: "b"}
	hub.Add(b)
	hub.CloseAll()
	require.Zero(t, hub.Len())
	require.True(t, b.closed)
}
