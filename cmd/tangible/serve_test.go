package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/srg/tangible/internal/gesture"

	"github.com/srg/tangible/internal/connection"
	"github.com/srg/tangible/internal/pairing"
	"github.com/srg/tangible/internal/permission"
	"github.com/srg/tangible/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, radio *testutils.FakeRadio, tune ...func(*connection.Options)) *connection.Manager {
	t.Helper()
	h := testutils.NewTestHelper(t)
	opts := connection.DefaultOptions()
	opts.ConnectTimeout = 100 * time.Millisecond
	opts.ReconnectBackoff = 5 * time.Millisecond
	opts.MaxReconnectBackoff = 20 * time.Millisecond
	for _, fn := range tune {
		fn(&opts)
	}

	m := connection.New(radio, pairing.NewMemoryStore(peripheralAddr), permission.NewStatic(true),
		connection.WithLogger(h.Logger),
		connection.WithOptions(opts),
	)
	t.Cleanup(func() { _ = m.Disconnect() })
	return m
}

func TestConnectLoop_RetriesUntilConnected(t *testing.T) {
	p := testutils.NewFakePeripheral(peripheralAddr).
		FailDials(errors.New("out of range"), errors.New("out of range"))
	radio := testutils.NewFakeRadio().AddPeripheral(p, "tangible")
	m := newTestManager(t, radio)

	ctx := testutils.NewTestHelper(t).Context(5 * time.Second)
	connectLoop(ctx, m, testutils.NewTestHelper(t).Logger)

	assert.Equal(t, connection.Connected, m.State())
	assert.Equal(t, 3, radio.Dials())
	assert.Equal(t, 1, p.Connects())
}

func TestConnectLoop_StopsWithContext(t *testing.T) {
	radio := testutils.NewFakeRadio()
	m := newTestManager(t, radio)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		connectLoop(ctx, m, testutils.NewTestHelper(t).Logger)
	}()

	require.Eventually(t, func() bool { return radio.Dials() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "connectLoop did not stop")
	}
	assert.Equal(t, connection.Disconnected, m.State())
}

func TestSleepCtx(t *testing.T) {
	assert.True(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleepCtx(ctx, time.Hour))
}

func postGesture(h http.Handler, body string) int {
	req := httptest.NewRequest(http.MethodPost, "/v1/gestures", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Code
}

func TestServeHandler_DeliversOnlyRequestedGestures(t *testing.T) {
	p := testutils.NewFakePeripheral(peripheralAddr)
	radio := testutils.NewFakeRadio().AddPeripheral(p, "tangible")
	m := newTestManager(t, radio)
	h := testutils.NewTestHelper(t)
	require.NoError(t, m.Connect(h.Context(5*time.Second)))

	d := gesture.NewDispatcher(h.Logger)
	defer d.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	observed := d.Subscribe(ctx, 4)

	handler := newServeHandler(m, d, prometheus.NewRegistry(), h.Logger)

	assert.Equal(t, http.StatusOK, postGesture(handler,
		`{"kind":"single_tap","x":900,"y":400,"width":1000,"height":900,"send":false}`))
	assert.Equal(t, http.StatusOK, postGesture(handler,
		`{"kind":"double_tap","x":900,"y":400,"width":1000,"height":900,"send":true}`))

	for _, want := range []string{"STTR", "DTTR"} {
		select {
		case i := <-observed:
			assert.Equal(t, want, i.Code())
		case <-time.After(time.Second):
			require.FailNow(t, "interaction not observed", want)
		}
	}

	// Give any stray delivery a chance to show up.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"DTTR"}, p.Received())
}

func TestServeHandler_GestureBurstQueuesOrRejects(t *testing.T) {
	p := testutils.NewFakePeripheral(peripheralAddr).SetWriteDelay(30 * time.Millisecond)
	radio := testutils.NewFakeRadio().AddPeripheral(p, "tangible")
	m := newTestManager(t, radio, func(o *connection.Options) { o.SendQueueSize = 2 })
	h := testutils.NewTestHelper(t)
	require.NoError(t, m.Connect(h.Context(5*time.Second)))

	d := gesture.NewDispatcher(h.Logger)
	defer d.Close()
	handler := newServeHandler(m, d, prometheus.NewRegistry(), h.Logger)

	const burst = 10
	var (
		mu    sync.Mutex
		codes = map[int]int{}
		wg    sync.WaitGroup
	)
	for n := 0; n < burst; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code := postGesture(handler, `{"kind":"long_press","x":10,"y":10,"width":1000,"height":900,"send":true}`)
			mu.Lock()
			codes[code]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, burst, codes[http.StatusOK]+codes[http.StatusTooManyRequests], "every gesture is either delivered or rejected as busy: %v", codes)
	assert.Positive(t, codes[http.StatusTooManyRequests])
	assert.Len(t, p.Received(), codes[http.StatusOK])
	assert.Equal(t, 1, p.MaxConcurrentWrites())

	journal := m.Journal()
	assert.Len(t, journal, burst, "rejected sends are journaled too")
}
