package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/identity-lifecycle-service/internal/application"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

type fakeTransport struct {
	status   int
	requests []recordedRequest
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rec := recordedRequest{Method: req.Method, Path: req.URL.Path, Query: req.URL.RawQuery}
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(b, &rec.Body)
	}
	f.requests = append(f.requests, rec)
	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	h := http.Header{}
	h.Set("X-Elastic-Product", "Elasticsearch")
	h.Set("Content-Type", "application/json")
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     h,
		Body:       io.NopCloser(strings.NewReader(`{}`)),
	}, nil
}

func newTestIndexer(t *testing.T, tr *fakeTransport) *IdentityIndexer {
	t.Helper()
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{"http://es.test:9200"},
		Transport: tr,
	})
	require.NoError(t, err)
	return NewIdentityIndexer(es, "identities")
}

func TestApplyIndexesIdentity(t *testing.T) {
	tr := &fakeTransport{}
	x := newTestIndexer(t, tr)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := x.Apply(context.Background(), application.IdentityEvent{
		Type:       application.EventIdentityStatusChanged,
		OccurredAt: at,
		Identity:   &application.IdentityView{ID: "id-1", Username: "alice", Status: "ACTIVE", CreatedAt: at, UpdatedAt: at},
	})
	require.NoError(t, err)
	require.Len(t, tr.requests, 1)
	assert.Equal(t, http.MethodPut, tr.requests[0].Method)
	assert.Equal(t, "/identities/_doc/id-1", tr.requests[0].Path)
	assert.Equal(t, "alice", tr.requests[0].Body["username"])
	assert.Equal(t, "ACTIVE", tr.requests[0].Body["status"])
	assert.NotContains(t, tr.requests[0].Body, "password_hash")
	assert.Contains(t, tr.requests[0].Query, "version_type=external")
	assert.Contains(t, tr.requests[0].Query, fmt.Sprintf("version=%d", at.UnixNano()))
}

func TestApplyStaleEventIsAcknowledged(t *testing.T) {
	tr := &fakeTransport{status: http.StatusConflict}
	x := newTestIndexer(t, tr)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := x.Apply(context.Background(), application.IdentityEvent{
		Type:     application.EventIdentityUpdated,
		Identity: &application.IdentityView{ID: "id-1", Status: "ACTIVE", CreatedAt: at, UpdatedAt: at},
	})
	require.NoError(t, err)
	require.Len(t, tr.requests, 1)
}

func TestApplyPendingExpiredRunsUpdateByQuery(t *testing.T) {
	tr := &fakeTransport{}
	x := newTestIndexer(t, tr)
	cutoff := time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC)

	err := x.Apply(context.Background(), application.IdentityEvent{
		Type:       application.EventPendingExpired,
		OccurredAt: cutoff.Add(24 * time.Hour),
		Count:      2,
		Cutoff:     &cutoff,
	})
	require.NoError(t, err)
	require.Len(t, tr.requests, 1)
	req := tr.requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/identities/_update_by_query", req.Path)
	assert.Contains(t, req.Query, "conflicts=proceed")

	script := req.Body["script"].(map[string]any)
	params := script["params"].(map[string]any)
	assert.Equal(t, "INACTIVE", params["status"])
	assert.Contains(t, mustJSON(t, req.Body["query"]), `"lt":"2026-02-28T12:00:00Z"`)
	assert.Contains(t, mustJSON(t, req.Body["query"]), `"status":"PENDING_VERIFICATION"`)
}

func TestApplyRejectsMalformedEvents(t *testing.T) {
	tr := &fakeTransport{}
	x := newTestIndexer(t, tr)
	ctx := context.Background()

	assert.ErrorIs(t, x.Apply(ctx, application.IdentityEvent{Type: application.EventIdentityCreated}), ErrMalformedEvent)
	assert.ErrorIs(t, x.Apply(ctx, application.IdentityEvent{Type: application.EventPendingExpired}), ErrMalformedEvent)
	assert.ErrorIs(t, x.Apply(ctx, application.IdentityEvent{Type: "identity.unknown"}), ErrMalformedEvent)
	assert.Empty(t, tr.requests)

	_, err := Decode([]byte("{not json"))
	assert.ErrorIs(t, err, ErrMalformedEvent)

	ev, err := Decode([]byte(`{"type":"identity.created","identity":{"id":"x","status":"PENDING_VERIFICATION"}}`))
	require.NoError(t, err)
	assert.Equal(t, "x", ev.Identity.ID)
}

func TestApplySurfacesErrorResponses(t *testing.T) {
	tr := &fakeTransport{status: http.StatusBadRequest}
	x := newTestIndexer(t, tr)

	err := x.Apply(context.Background(), application.IdentityEvent{
		Type:     application.EventIdentityCreated,
		Identity: &application.IdentityView{ID: "id-1"},
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformedEvent)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
