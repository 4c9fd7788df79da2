package export

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type webhook struct {
	mu      sync.Mutex
	batches []Batch
	auth    []string
	status  int
}

func (w *webhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var b Batch
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		rw.WriteHeader(http.StatusBadRequest)
		return
	}
	w.batches = append(w.batches, b)
	w.auth = append(w.auth, r.Header.Get("Authorization"))
	if w.status != 0 {
		rw.WriteHeader(w.status)
	}
}

func (w *webhook) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.batches)
}

func TestNewExporter_RequiresURL(t *testing.T) {
	_, err := NewExporter(ExporterConfig{})
	assert.Error(t, err)
}

func TestExporter_Flush(t *testing.T) {
	hook := &webhook{}
	srv := httptest.NewServer(hook)
	defer srv.Close()

	e, err := NewExporter(ExporterConfig{WebhookURL: srv.URL, WebhookAPIKey: "secret", BatchSize: 10})
	require.NoError(t, err)

	require.NoError(t, e.Flush(context.Background()))
	assert.Equal(t, 0, hook.count(), "empty batches are not posted")

	e.Add(Record{Type: "receipt", Data: map[string]string{"id": "a"}}, Record{Type: "snapshot", Data: 1})
	assert.Equal(t, 2, e.GetExporterStatus().Pending)
	require.NoError(t, e.Flush(context.Background()))

	require.Equal(t, 1, hook.count())
	assert.Equal(t, 2, hook.batches[0].Count)
	assert.Equal(t, "receipt", hook.batches[0].Records[0].Type)
	assert.Equal(t, "Bearer secret", hook.auth[0])

	st := e.GetExporterStatus()
	assert.Equal(t, 0, st.Pending)
	assert.Equal(t, 2, st.Exported)
	assert.False(t, st.LastExport.IsZero())
}

func TestExporter_FailedPost(t *testing.T) {
	hook := &webhook{status: http.StatusBadRequest}
	srv := httptest.NewServer(hook)
	defer srv.Close()

	e, err := NewExporter(ExporterConfig{WebhookURL: srv.URL, RetryMax: 1})
	require.NoError(t, err)
	e.Add(Record{Type: "receipt"})
	err = e.Flush(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, 1, e.GetExporterStatus().Failed)
}

func TestExporter_FullBatchTriggersExport(t *testing.T) {
	hook := &webhook{}
	srv := httptest.NewServer(hook)
	defer srv.Close()

	e, err := NewExporter(ExporterConfig{WebhookURL: srv.URL, BatchSize: 2, ExportInterval: time.Hour})
	require.NoError(t, err)
	e.Start(context.Background())

	e.Add(Record{Type: "receipt"}, Record{Type: "receipt"})
	assert.Eventually(t, func() bool { return hook.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	e.Add(Record{Type: "snapshot"})
	require.NoError(t, e.Stop(context.Background()))
	assert.Equal(t, 2, hook.count(), "Stop flushes the remainder")
}
