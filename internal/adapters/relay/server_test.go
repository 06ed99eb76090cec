package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"activestats/internal/core/domain"
	"activestats/internal/core/ports"
)

type fakePoller struct {
	mu        sync.Mutex
	snap      domain.Snapshot
	updates   chan domain.Snapshot
	result    domain.RefreshResult
	err       error
	refreshed []domain.JobKind
}

func newFakePoller(snap domain.Snapshot) *fakePoller {
	return &fakePoller{snap: snap, updates: make(chan domain.Snapshot, 4)}
}

func (f *fakePoller) Snapshot() domain.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakePoller) Subscribe() (<-chan domain.Snapshot, func()) {
	f.updates <- f.Snapshot()
	return f.updates, func() {}
}

func (f *fakePoller) Refresh(ctx context.Context, kind domain.JobKind) (domain.RefreshResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed = append(f.refreshed, kind)
	return f.result, f.err
}

func (f *fakePoller) publish(snap domain.Snapshot) {
	f.mu.Lock()
	f.snap = snap
	f.mu.Unlock()
	f.updates <- snap
}

func finishedSnapshot(paid bool) domain.Snapshot {
	done := domain.JobStatus{Status: domain.StatusFinished, Message: "Data last refreshed at: today.", StopPolling: true}
	return domain.Snapshot{
		SessionID: "test",
		Summary:   domain.KindState{Job: done},
		Detailed:  domain.KindState{Job: done},
		Paid:      paid,
	}
}

func TestServer_Healthz(t *testing.T) {
	srv := httptest.NewServer(NewServer(newFakePoller(domain.Snapshot{}), nil).Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Status(t *testing.T) {
	poller := newFakePoller(finishedSnapshot(false))
	srv := httptest.NewServer(NewServer(poller, nil).Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, domain.StatusFinished, body.Snapshot.Summary.Job.Status)
	require.Len(t, body.Enablement, 2)
	assert.True(t, body.Enablement[0].NavigationEnabled)
	assert.True(t, body.Enablement[0].RefreshEnabled)
	assert.False(t, body.Enablement[1].RefreshEnabled, "detailed refresh requires payment")
}

func TestServer_Refresh(t *testing.T) {
	tests := []struct {
		name        string
		kind        string
		snap        domain.Snapshot
		result      domain.RefreshResult
		err         error
		wantStatus  int
		wantRefresh bool
	}{
		{
			name:        "accepted",
			kind:        "summary",
			snap:        finishedSnapshot(false),
			result:      domain.RefreshResult{Accepted: true},
			wantStatus:  http.StatusOK,
			wantRefresh: true,
		},
		{
			name:       "unknown kind",
			kind:       "weekly",
			snap:       finishedSnapshot(true),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "detailed without payment",
			kind:       "detailed",
			snap:       finishedSnapshot(false),
			wantStatus: http.StatusConflict,
		},
		{
			name:       "job in progress",
			kind:       "summary",
			snap:       domain.Snapshot{Summary: domain.KindState{Job: domain.RefreshingJobStatus(), Polling: true}},
			wantStatus: http.StatusConflict,
		},
		{
			name:        "session invalid",
			kind:        "detailed",
			snap:        finishedSnapshot(true),
			err:         fmt.Errorf("refresh: %w", ports.ErrUnauthorized),
			wantStatus:  http.StatusUnauthorized,
			wantRefresh: true,
		},
		{
			name:        "backend unreachable",
			kind:        "summary",
			snap:        finishedSnapshot(true),
			err:         errors.New("connection refused"),
			wantStatus:  http.StatusBadGateway,
			wantRefresh: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			poller := newFakePoller(tt.snap)
			poller.result = tt.result
			poller.err = tt.err
			srv := httptest.NewServer(NewServer(poller, nil).Routes())
			defer srv.Close()

			resp, err := http.Post(srv.URL+"/refresh/"+tt.kind, "application/json", nil)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantRefresh {
				assert.Len(t, poller.refreshed, 1)
			} else {
				assert.Empty(t, poller.refreshed)
			}
			if tt.wantStatus == http.StatusOK {
				var got domain.RefreshResult
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
				assert.True(t, got.Accepted)
			}
		})
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestServer_WebSocket(t *testing.T) {
	poller := newFakePoller(finishedSnapshot(false))
	s := NewServer(poller, nil)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.hub.Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	msg := readMessage(t, conn)
	require.Equal(t, MessageSnapshot, msg.Type)
	require.NotNil(t, msg.Snapshot)
	assert.Equal(t, domain.StatusFinished, msg.Snapshot.Summary.Job.Status)
	assert.Len(t, msg.Enablement, 2)

	next := finishedSnapshot(true)
	next.Summary = domain.KindState{Job: domain.RefreshingJobStatus(), Polling: true}
	poller.publish(next)

	msg = readMessage(t, conn)
	require.Equal(t, MessageSnapshot, msg.Type)
	assert.Equal(t, domain.StatusPending, msg.Snapshot.Summary.Job.Status)
	assert.False(t, msg.Enablement[0].RefreshEnabled)
	assert.True(t, msg.Enablement[1].RefreshEnabled)

	s.Redirect("/")
	msg = readMessage(t, conn)
	assert.Equal(t, MessageRedirect, msg.Type)
	assert.Equal(t, "/", msg.Location)
}

func TestServer_WebSocketReplaysRedirect(t *testing.T) {
	poller := newFakePoller(finishedSnapshot(false))
	s := NewServer(poller, nil)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	s.Redirect("/")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	require.Eventually(t, func() bool {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			return false
		}
		defer conn.Close()
		for {
			if err := conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond)); err != nil {
				return false
			}
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				return false
			}
			if msg.Type == MessageRedirect {
				return msg.Location == "/"
			}
		}
	}, 2*time.Second, 10*time.Millisecond)
}
