package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/oksasatya/identity-lifecycle-service/internal/application"
	"github.com/oksasatya/identity-lifecycle-service/internal/domain/entity"
)

// IdentityMapping is the index mapping for projected identities.
const IdentityMapping = `{
  "mappings": {
    "properties": {
      "id":           {"type": "keyword"},
      "username":     {"type": "keyword", "fields": {"text": {"type": "text"}}},
      "email":        {"type": "keyword", "fields": {"text": {"type": "text"}}},
      "full_name":    {"type": "text"},
      "headline":     {"type": "text"},
      "profile_link": {"type": "keyword", "index": false},
      "headshot_url": {"type": "keyword", "index": false},
      "status":       {"type": "keyword"},
      "provider":     {"type": "keyword"},
      "provider_id":  {"type": "keyword"},
      "created_at":   {"type": "date"},
      "updated_at":   {"type": "date"}
    }
  }
}`

// ErrMalformedEvent marks messages that can never be applied and should be
// dropped rather than redelivered.
var ErrMalformedEvent = errors.New("malformed identity event")

var errVersionConflict = errors.New("version conflict")

// IdentityIndexer projects identity events into an Elasticsearch index.
type IdentityIndexer struct {
	ES      *elasticsearch.Client
	Index   string
	Timeout time.Duration
}

func NewIdentityIndexer(es *elasticsearch.Client, index string) *IdentityIndexer {
	return &IdentityIndexer{ES: es, Index: index, Timeout: 5 * time.Second}
}

// Decode parses a queue message body.
func Decode(body []byte) (application.IdentityEvent, error) {
	var ev application.IdentityEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return ev, nil
}

// Apply writes one event to the index.
func (x *IdentityIndexer) Apply(ctx context.Context, ev application.IdentityEvent) error {
	switch ev.Type {
	case application.EventIdentityCreated,
		application.EventIdentityUpserted,
		application.EventIdentityUpdated,
		application.EventIdentityStatusChanged:
		if ev.Identity == nil || ev.Identity.ID == "" {
			return fmt.Errorf("%w: %s without identity", ErrMalformedEvent, ev.Type)
		}
		return x.index(ctx, *ev.Identity)
	case application.EventPendingExpired:
		if ev.Cutoff == nil {
			return fmt.Errorf("%w: %s without cutoff", ErrMalformedEvent, ev.Type)
		}
		return x.expirePending(ctx, *ev.Cutoff, ev.OccurredAt)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, ev.Type)
	}
}

func (x *IdentityIndexer) index(ctx context.Context, v application.IdentityView) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	// updated_at is the external version, so a redelivered older event
	// loses to the document already indexed.
	req := esapi.IndexRequest{
		Index:       x.Index,
		DocumentID:  v.ID,
		Body:        bytes.NewReader(b),
		Refresh:     "false",
		Version:     esapi.IntPtr(int(v.UpdatedAt.UnixNano())),
		VersionType: "external",
	}
	err = x.do(ctx, req)
	if errors.Is(err, errVersionConflict) {
		return nil
	}
	return err
}

// expirePending mirrors a sweep: stale pending documents become INACTIVE.
func (x *IdentityIndexer) expirePending(ctx context.Context, cutoff, at time.Time) error {
	body := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []any{
					map[string]any{"term": map[string]any{"status": string(entity.StatusPendingVerification)}},
					map[string]any{"range": map[string]any{"created_at": map[string]any{"lt": cutoff.UTC().Format(time.RFC3339Nano)}}},
				},
			},
		},
		"script": map[string]any{
			"lang":   "painless",
			"source": "ctx._source.status = params.status; ctx._source.updated_at = params.at",
			"params": map[string]any{
				"status": string(entity.StatusInactive),
				"at":     at.UTC().Format(time.RFC3339Nano),
			},
		},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req := esapi.UpdateByQueryRequest{Index: []string{x.Index}, Body: bytes.NewReader(b), Conflicts: "proceed"}
	return x.do(ctx, req)
}

func (x *IdentityIndexer) do(ctx context.Context, req esapi.Request) error {
	c, cancel := context.WithTimeout(ctx, x.Timeout)
	defer cancel()
	res, err := req.Do(c, x.ES)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode == http.StatusConflict {
		return fmt.Errorf("elasticsearch %s: %w", x.Index, errVersionConflict)
	}
	if res.IsError() {
		return fmt.Errorf("elasticsearch %s: %s", x.Index, res.Status())
	}
	return nil
}
