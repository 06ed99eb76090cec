package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatus_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		body string
		want JobStatus
	}{
		{
			name: "null status",
			body: `{"status": null, "message": "no data", "stop_polling": true}`,
			want: JobStatus{Status: StatusNull, Message: "no data", StopPolling: true},
		},
		{
			name: "missing status is null",
			body: `{"message": "no data"}`,
			want: JobStatus{Status: StatusNull, Message: "no data"},
		},
		{
			name: "queued",
			body: `{"status": "queued", "message": "Position 3 in the queue.", "stop_polling": false}`,
			want: JobStatus{Status: StatusQueued, Message: "Position 3 in the queue."},
		},
		{
			name: "camel case stopPolling",
			body: `{"status": "finished", "message": "done", "stopPolling": true}`,
			want: JobStatus{Status: StatusFinished, Message: "done", StopPolling: true},
		},
		{
			name: "british cancelled",
			body: `{"status": "cancelled", "stop_polling": true}`,
			want: JobStatus{Status: StatusCancelled, StopPolling: true},
		},
		{
			name: "unrecognised status",
			body: `{"status": "deferred", "stop_polling": false}`,
			want: JobStatus{Status: StatusUnknown},
		},
		{
			name: "non-string status",
			body: `{"status": 7, "stop_polling": true}`,
			want: JobStatus{Status: StatusUnknown, StopPolling: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got JobStatus
			require.NoError(t, json.Unmarshal([]byte(tt.body), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatus_MarshalNull(t *testing.T) {
	data, err := json.Marshal(JobStatus{Status: StatusNull, Message: "m", StopPolling: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status": null, "message": "m", "stop_polling": true}`, string(data))
}

func TestStatus_Terminal(t *testing.T) {
	for _, s := range []Status{StatusFinished, StatusCancelled, StatusFailed, StatusTooRecent} {
		assert.True(t, s.Terminal(), s)
	}
	for _, s := range []Status{StatusUnknown, StatusNull, StatusPending, StatusQueued, StatusStarted} {
		assert.False(t, s.Terminal(), s)
	}
}

func TestParseJobKind(t *testing.T) {
	kind, err := ParseJobKind("detailed")
	require.NoError(t, err)
	assert.Equal(t, Detailed, kind)

	_, err = ParseJobKind("weekly")
	assert.Error(t, err)
}

func TestSnapshot_Enablement(t *testing.T) {
	snap := Snapshot{
		Summary:  KindState{Job: JobStatus{Status: StatusFinished, Message: "Data last refreshed", StopPolling: true}},
		Detailed: KindState{Job: JobStatus{Status: StatusStarted, Message: "working", StopPolling: false}},
		Paid:     true,
	}

	summary := snap.Enablement(Summary)
	assert.True(t, summary.NavigationEnabled)
	assert.True(t, summary.RefreshEnabled)
	assert.Equal(t, "Data last refreshed", summary.Message)

	detailed := snap.Enablement(Detailed)
	assert.False(t, detailed.NavigationEnabled)
	assert.False(t, detailed.RefreshEnabled, "refresh must be disabled while polling")
}

func TestSnapshot_EnablementDetailedRequiresPaid(t *testing.T) {
	snap := Snapshot{
		Detailed: KindState{Job: JobStatus{Status: StatusFinished, StopPolling: true}},
	}

	detailed := snap.Enablement(Detailed)
	assert.True(t, detailed.NavigationEnabled)
	assert.False(t, detailed.RefreshEnabled)

	snap.Paid = true
	assert.True(t, snap.Enablement(Detailed).RefreshEnabled)
}

func TestSnapshot_InitialStateDisablesEverything(t *testing.T) {
	snap := Snapshot{
		Summary:  KindState{Job: InitialJobStatus()},
		Detailed: KindState{Job: InitialJobStatus()},
		Paid:     true,
	}
	for _, e := range snap.Enablements() {
		assert.False(t, e.NavigationEnabled, e.Kind)
		assert.False(t, e.RefreshEnabled, e.Kind)
	}
}
