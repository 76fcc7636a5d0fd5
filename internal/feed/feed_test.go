package feed

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeFiltersByCollectionAndMask(t *testing.T) {
	hub := NewHub(8)
	defer hub.Close()

	reservations := hub.Subscribe(MaskDelete, "reservations")
	defer reservations.Close()
	everything := hub.Subscribe(MaskAll)
	defer everything.Close()

	ctx := context.Background()
	hub.Publish(ctx,
		NewNotification("reservations", OpInsert, 1, nil),
		NewNotification("expenses", OpDelete, 2, nil),
		NewNotification("reservations", OpDelete, 3, map[string]int{"id": 3}),
	)

	got := <-reservations.C()
	assert.Equal(t, int64(3), got.RowID)
	assert.JSONEq(t, `{"id":3}`, string(got.Row))
	select {
	case extra := <-reservations.C():
		t.Fatalf("unexpected notification %+v", extra)
	default:
	}

	assert.Len(t, everything.C(), 3)
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	hub := NewHub(1)
	sub := hub.Subscribe(MaskAll)
	require.Equal(t, 1, hub.Len())

	sub.Close()
	sub.Close()

	assert.Equal(t, 0, hub.Len())
	_, ok := <-sub.C()
	assert.False(t, ok)
}

func TestFullBufferDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub(1)
	defer hub.Close()
	sub := hub.Subscribe(MaskAll)

	hub.Publish(context.Background(),
		NewNotification("reservations", OpInsert, 1, nil),
		NewNotification("reservations", OpInsert, 2, nil),
	)

	assert.Equal(t, int64(1), sub.Dropped())
	assert.Equal(t, int64(1), hub.Dropped())
	assert.Equal(t, int64(1), (<-sub.C()).RowID)
}

func TestHubCloseEndsSubscriptions(t *testing.T) {
	hub := NewHub(4)
	sub := hub.Subscribe(MaskAll)
	hub.Close()

	_, ok := <-sub.C()
	assert.False(t, ok)
	sub.Close()

	late := hub.Subscribe(MaskAll)
	_, ok = <-late.C()
	assert.False(t, ok)
}

func TestParseMask(t *testing.T) {
	assert.Equal(t, MaskAll, ParseMask(""))
	assert.Equal(t, MaskInsert|MaskDelete, ParseMask("insert, DELETE"))
	assert.Equal(t, MaskAll, ParseMask("bogus"))
}

func TestAdapterWatchSurvivesHandlerFailures(t *testing.T) {
	hub := NewHub(8)
	defer hub.Close()
	adapter := NewAdapter(hub)

	var calls atomic.Int32
	seen := make(chan int64, 4)
	watch := adapter.Watch(context.Background(), HandlerFunc(func(ctx context.Context, n Notification) error {
		switch calls.Add(1) {
		case 1:
			return errors.New("boom")
		case 2:
			panic("kaboom")
		}
		seen <- n.RowID
		return nil
	}), MaskAll, "transactions")

	for i := int64(1); i <= 3; i++ {
		hub.Publish(context.Background(), NewNotification("transactions", OpInsert, i, nil))
	}

	select {
	case id := <-seen:
		assert.Equal(t, int64(3), id)
	case <-time.After(2 * time.Second):
		t.Fatal("handler never received the third notification")
	}

	watch.Stop()
	watch.Stop()
	assert.Equal(t, 0, hub.Len())
}

func TestPublishHooksSkipRemoteNotifications(t *testing.T) {
	hub := NewHub(4)
	defer hub.Close()

	var hooked []int64
	hub.OnPublish(func(n Notification) { hooked = append(hooked, n.RowID) })

	local := NewNotification("expenses", OpInsert, 1, nil)
	remote := NewNotification("expenses", OpInsert, 2, nil)
	remote.Origin = "other-process"
	hub.Publish(context.Background(), local, remote)

	assert.Equal(t, []int64{1}, hooked)
}

func TestRelayEnvelopeRoundTrip(t *testing.T) {
	n := NewNotification("reservations", OpUpdate, 9, map[string]string{"date": "2024-05-01"})

	payload, err := encodeEnvelope(n, "self")
	require.NoError(t, err)

	_, remote, err := decodeEnvelope(payload, "self")
	require.NoError(t, err)
	assert.False(t, remote)

	decoded, remote, err := decodeEnvelope(payload, "peer")
	require.NoError(t, err)
	assert.True(t, remote)
	assert.Equal(t, n.ID, decoded.ID)
	assert.Equal(t, "self", decoded.Origin)

	_, _, err = decodeEnvelope([]byte(`{"id":"x"}`), "peer")
	assert.Error(t, err)
}
