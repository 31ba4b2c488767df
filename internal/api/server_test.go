package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/srg/tangible/internal/codec"
	"github.com/srg/tangible/internal/connection"
	"github.com/srg/tangible/internal/device"
	"github.com/srg/tangible/internal/gesture"
	"github.com/srg/tangible/internal/interaction"
	"github.com/srg/tangible/internal/metrics"
	"github.com/srg/tangible/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockManager struct {
	mock.Mock
}

func (m *mockManager) CheckAvailability(ctx context.Context) (connection.Availability, error) {
	args := m.Called(ctx)
	return args.Get(0).(connection.Availability), args.Error(1)
}

func (m *mockManager) State() connection.State {
	return m.Called().Get(0).(connection.State)
}

func (m *mockManager) Address() string {
	return m.Called().String(0)
}

func (m *mockManager) Subscribe(ctx context.Context) <-chan connection.State {
	return m.Called(ctx).Get(0).(<-chan connection.State)
}

func (m *mockManager) Send(ctx context.Context, i interaction.Interaction) (connection.Ack, error) {
	args := m.Called(ctx, i)
	return args.Get(0).(connection.Ack), args.Error(1)
}

func (m *mockManager) Journal() []connection.SendRecord {
	records, _ := m.Called().Get(0).([]connection.SendRecord)
	return records
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestGetAvailability(t *testing.T) {
	tests := []struct {
		name       string
		result     connection.Availability
		err        error
		wantStatus int
		wantBody   string
	}{
		{name: "available", result: connection.Available, wantStatus: http.StatusOK, wantBody: `{"availability":"available"}`},
		{name: "not paired", result: connection.NotPaired, wantStatus: http.StatusOK, wantBody: `{"availability":"not_paired"}`},
		{name: "not found", result: connection.NotFound, wantStatus: http.StatusOK, wantBody: `{"availability":"not_found"}`},
		{name: "no permission", result: connection.Pending, err: device.ErrPermission, wantStatus: http.StatusForbidden, wantBody: `{"error":"radio permission not granted"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockManager{}
			m.On("CheckAvailability", mock.Anything).Return(tt.result, tt.err)

			w := do(NewHandler(m), http.MethodGet, "/v1/availability", "")

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			testutils.NewJSONAsserter(t).Assert(w.Body.String(), tt.wantBody)
			m.AssertExpectations(t)
		})
	}
}

func TestGetState(t *testing.T) {
	m := &mockManager{}
	m.On("State").Return(connection.Connected)
	m.On("Address").Return("AA:BB:CC:DD:EE:FF")

	w := do(NewHandler(m), http.MethodGet, "/v1/state", "")

	require.Equal(t, http.StatusOK, w.Code)
	testutils.NewJSONAsserter(t).Assert(w.Body.String(), `{"state":"connected","address":"AA:BB:CC:DD:EE:FF"}`)
}

func TestPostInteraction(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name       string
		body       string
		sendErr    error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "delivered",
			body:       `{"code":"dtbr"}`,
			wantStatus: http.StatusOK,
			wantBody:   fmt.Sprintf(`{"code":"DTBR","frame":"%s","ack":"OK","id":%q}`, codec.Encode([]byte("DTBR")).Hex(), id),
		},
		{name: "not connected", body: `{"code":"FLUP"}`, sendErr: device.ErrNotConnected, wantStatus: http.StatusConflict},
		{name: "busy", body: `{"code":"FLUP"}`, sendErr: device.ErrBusy, wantStatus: http.StatusTooManyRequests},
		{name: "timeout", body: `{"code":"FLUP"}`, sendErr: fmt.Errorf("%w: no acknowledgment", device.ErrWriteTimeout), wantStatus: http.StatusGatewayTimeout},
		{name: "link dropped", body: `{"code":"FLUP"}`, sendErr: device.ErrLinkDropped, wantStatus: http.StatusBadGateway},
		{name: "unknown code", body: `{"code":"ZZZZ"}`, wantStatus: http.StatusBadRequest},
		{name: "malformed body", body: `{"code":`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockManager{}
			m.On("Send", mock.Anything, mock.Anything).
				Return(connection.Ack{ID: id, Data: []byte("OK"), RTT: 12 * time.Millisecond}, tt.sendErr).
				Maybe()

			w := do(NewHandler(m), http.MethodPost, "/v1/interactions", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantBody != "" {
				testutils.NewJSONAsserter(t).Assert(w.Body.String(), tt.wantBody)
			}
			if tt.wantStatus == http.StatusBadRequest {
				m.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestPostGesture_ClassifyOnly(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{name: "double tap back right", body: `{"kind":"double_tap","x":900,"y":100,"width":1000,"height":900}`, wantCode: "DTBR"},
		{name: "long press front left", body: `{"kind":"long-press","x":10,"y":890,"width":1000,"height":900}`, wantCode: "LPFL"},
		{name: "fling up", body: `{"kind":"fling","start":{"x":500,"y":800},"end":{"x":510,"y":100},"width":1000,"height":900}`, wantCode: "FLUP"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockManager{}
			w := do(NewHandler(m), http.MethodPost, "/v1/gestures", tt.body)

			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			testutils.NewJSONAsserter(t).Assert(w.Body.String(), fmt.Sprintf(`{"code":%q}`, tt.wantCode))
			m.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
		})
	}
}

func TestPostGesture_Invalid(t *testing.T) {
	bodies := map[string]string{
		"unknown kind":    `{"kind":"pinch","x":1,"y":1,"width":10,"height":10}`,
		"missing kind":    `{"x":1,"y":1,"width":10,"height":10}`,
		"zero extent":     `{"kind":"single_tap","x":1,"y":1,"width":0,"height":10}`,
		"fling no points": `{"kind":"fling","width":10,"height":10}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			w := do(NewHandler(&mockManager{}), http.MethodPost, "/v1/gestures", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestPostGesture_SendPublishesToDispatcher(t *testing.T) {
	m := &mockManager{}
	m.On("Send", mock.Anything, interaction.SingleTap(interaction.TopRight)).
		Return(connection.Ack{ID: uuid.New(), Data: []byte("OK")}, nil).Once()

	d := gesture.NewDispatcher(nil)
	defer d.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	published := d.Subscribe(ctx, 1)

	w := do(NewHandler(m, WithDispatcher(d)), http.MethodPost, "/v1/gestures",
		`{"kind":"single_tap","x":700,"y":450,"width":1000,"height":900,"send":true}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	testutils.NewJSONAsserter(t).Assert(w.Body.String(), `{"code":"STTR","ack":"OK"}`)
	m.AssertExpectations(t)

	select {
	case i := <-published:
		assert.Equal(t, "STTR", i.Code())
	case <-time.After(time.Second):
		t.Fatal("gesture was not published")
	}
}

func TestGetJournal(t *testing.T) {
	m := &mockManager{}
	m.On("Journal").Return(nil).Once()

	w := do(NewHandler(m), http.MethodGet, "/v1/journal", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	rec := connection.SendRecord{ID: uuid.New(), Code: "FLUP", Frame: "21464c5550a7", Result: "ok", RTT: time.Millisecond}
	m.On("Journal").Return([]connection.SendRecord{rec}).Once()

	w = do(NewHandler(m), http.MethodGet, "/v1/journal", "")
	require.Equal(t, http.StatusOK, w.Code)
	testutils.NewJSONAsserter(t).Assert(w.Body.String(),
		fmt.Sprintf(`[{"id":%q,"code":"FLUP","frame":"21464c5550a7","result":"ok","rtt_ns":1000000,"at":"<<PRESENCE>>"}]`, rec.ID))
}

func TestSubscribeEvents(t *testing.T) {
	states := make(chan connection.State, 4)
	m := &mockManager{}
	m.On("Subscribe", mock.Anything).Return((<-chan connection.State)(states))
	m.On("State").Return(connection.Disconnected)
	m.On("Address").Return("")

	d := gesture.NewDispatcher(nil)
	defer d.Close()
	h := NewHandler(m, WithDispatcher(d))

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/v1/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(w, req)
	}()

	states <- connection.Connecting
	states <- connection.Connected
	require.Eventually(t, func() bool {
		d.Dispatch(gesture.Event{
			Kind:   interaction.KindDoubleTap,
			Start:  interaction.Point{X: 1, Y: 1},
			Extent: interaction.ScreenExtent{Width: 10, Height: 9},
		})
		return len(states) == 0
	}, time.Second, 10*time.Millisecond)
	d.Dispatch(gesture.Event{
		Kind:   interaction.KindDoubleTap,
		Start:  interaction.Point{X: 1, Y: 1},
		Extent: interaction.ScreenExtent{Width: 10, Height: 9},
	})
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, "event: state\ndata: {\"state\":\"disconnected\"}\n\n")
	assert.Contains(t, body, "event: state\ndata: {\"state\":\"connecting\"}\n\n")
	assert.Contains(t, body, "event: state\ndata: {\"state\":\"connected\"}\n\n")
	assert.Contains(t, body, "event: interaction\ndata: {\"code\":\"DTBL\",\"kind\":\"double_tap\"}\n\n")
	assert.Less(t, strings.Index(body, `"connecting"`), strings.Index(body, `"connected"`))
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.New(reg)
	c.Sent("ok", 5*time.Millisecond)

	w := do(NewHandler(&mockManager{}, WithGatherer(reg)), http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `tangible_sends_total{result="ok"} 1`)
}

func TestMetricsEndpoint_AbsentWithoutGatherer(t *testing.T) {
	w := do(NewHandler(&mockManager{}), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusForbidden, StatusFor(fmt.Errorf("wrapped: %w", device.ErrPermission)))
	assert.Equal(t, http.StatusConflict, StatusFor(device.ErrAlreadyConnected))
	assert.Equal(t, http.StatusConflict, StatusFor(device.ErrNoPairedPeripheral))
	assert.Equal(t, http.StatusGatewayTimeout, StatusFor(context.DeadlineExceeded))
	assert.Equal(t, http.StatusBadRequest, StatusFor(codec.ErrNotEncodable))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(fmt.Errorf("boom")))
}
