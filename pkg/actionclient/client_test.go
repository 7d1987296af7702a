package actionclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedServer struct {
	*httptest.Server
	calls   atomic.Int32
	replies []func(w http.ResponseWriter, r *http.Request)
	lastReq atomic.Pointer[Payload]
}

func newScriptedServer(t *testing.T, replies ...func(w http.ResponseWriter, r *http.Request)) *scriptedServer {
	t.Helper()
	s := &scriptedServer{replies: replies}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(s.calls.Add(1)) - 1
		var p Payload
		_ = json.NewDecoder(r.Body).Decode(&p)
		s.lastReq.Store(&p)
		if r.URL.Path != "/v1/actions" || r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if n >= len(s.replies) {
			n = len(s.replies) - 1
		}
		s.replies[n](w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func reply(status int, body string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

const okBody = `{"success":true,"result":{"action":"create_appointment","entity_id":"apt-1","message":"Appointment scheduled","data":{"duration_minutes":60}}}`

func newTestClient(t *testing.T, url string, opts ...Option) *Client {
	t.Helper()
	c, err := New(url+"/", "tok", append([]Option{WithRetry(3, time.Millisecond)}, opts...)...)
	require.NoError(t, err)
	return c
}

func TestExecuteSucceeds(t *testing.T) {
	srv := newScriptedServer(t, reply(http.StatusOK, okBody))
	c := newTestClient(t, srv.URL)

	res, err := c.Execute(context.Background(), Payload{
		Action:   "create_appointment",
		Params:   map[string]any{"client_name": "Jane"},
		Timezone: "America/New_York",
	})
	require.NoError(t, err)
	assert.Equal(t, "apt-1", res.EntityID)
	assert.Equal(t, "Appointment scheduled", res.Message)
	assert.JSONEq(t, `{"duration_minutes":60}`, string(res.Data))

	sent := srv.lastReq.Load()
	assert.Equal(t, "create_appointment", sent.Action)
	assert.Equal(t, "America/New_York", sent.Timezone)
	assert.EqualValues(t, 1, srv.calls.Load())
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	srv := newScriptedServer(t,
		reply(http.StatusTooManyRequests, `{"error":"You're sending requests too quickly.","code":"rate_limited"}`),
		reply(http.StatusServiceUnavailable, `upstream temporarily unavailable`),
		reply(http.StatusOK, okBody),
	)
	c := newTestClient(t, srv.URL)

	res, err := c.Execute(context.Background(), Payload{Action: "create_appointment"})
	require.NoError(t, err)
	assert.Equal(t, "apt-1", res.EntityID)
	assert.EqualValues(t, 3, srv.calls.Load())
}

func TestExecuteGivesUpAfterMaxRetries(t *testing.T) {
	srv := newScriptedServer(t, reply(http.StatusTooManyRequests, `{"error":"slow down","code":"rate_limited"}`))
	c := newTestClient(t, srv.URL)

	_, err := c.Execute(context.Background(), Payload{Action: "list_appointments"})

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, CategoryUnavailable, e.Category)
	assert.EqualValues(t, 4, srv.calls.Load())
}

func TestExecuteRetriesPerAttemptTimeout(t *testing.T) {
	slow := func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}
	srv := newScriptedServer(t, slow, reply(http.StatusOK, okBody))
	c := newTestClient(t, srv.URL, WithTimeout(20*time.Millisecond))

	res, err := c.Execute(context.Background(), Payload{Action: "create_appointment"})
	require.NoError(t, err)
	assert.Equal(t, "apt-1", res.EntityID)
	assert.EqualValues(t, 2, srv.calls.Load())
}

func TestExecuteStopsOnPermanentFailures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		category Category
	}{
		{"missing client", http.StatusBadRequest, `{"error":"I couldn't find a client named \"Roe\".","code":"not_found"}`, CategoryMissingClient},
		{"bad time", http.StatusBadRequest, `{"error":"Invalid start_time: must be an ISO 8601 date-time.","code":"validation_error"}`, CategoryDateTime},
		{"denied", http.StatusBadRequest, `{"error":"You don't have access to that client.","code":"forbidden"}`, CategoryPermission},
		{"bad token", http.StatusUnauthorized, `{"error":"Invalid or expired token","code":"unauthorized"}`, CategoryPermission},
		{"server error", http.StatusInternalServerError, `{"error":"Something went wrong. Please try again.","code":"internal_error"}`, CategoryGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newScriptedServer(t, reply(tt.status, tt.body))
			c := newTestClient(t, srv.URL)

			_, err := c.Execute(context.Background(), Payload{Action: "create_appointment"})

			var e *Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.category, e.Category)
			assert.Equal(t, friendlyMessages[tt.category], FriendlyMessage(err))
			assert.EqualValues(t, 1, srv.calls.Load())

			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.status, se.Status)
		})
	}
}

func TestExecuteHonoursCallerCancellation(t *testing.T) {
	srv := newScriptedServer(t, reply(http.StatusServiceUnavailable, `service unavailable`))
	c, err := New(srv.URL, "tok", WithRetry(3, time.Hour))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = c.Execute(ctx, Payload{Action: "list_appointments"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestNewValidatesArguments(t *testing.T) {
	_, err := New("", "tok")
	assert.Error(t, err)
	_, err = New("http://localhost", " ")
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, CategoryUnavailable, Classify(errors.New("dial tcp: connection refused")))
	assert.Equal(t, CategoryDateTime, Classify(errors.New("cannot parse due_at")))
	assert.Equal(t, CategoryGeneric, Classify(errors.New("I couldn't find that appointment.")))
	assert.Equal(t, CategoryUnavailable, Classify(&StatusError{Status: 500, Code: "timeout", Message: "That took too long."}))
	assert.Equal(t, "", FriendlyMessage(nil))
}
