package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/meilisearch/meilisearch-go"
)

const (
	defaultIndexName = "teachers"
	defaultLimit     = 20
	maxLimit         = 100
)

// MeiliConfig configures the Meilisearch backed index.
type MeiliConfig struct {
	Host   string
	APIKey string
	Index  string
}

// MeiliIndex stores teacher documents in a Meilisearch index.
type MeiliIndex struct {
	client meilisearch.ServiceManager
	index  string
}

// NewMeiliIndex builds a client for cfg.Host. No request is made until use.
func NewMeiliIndex(cfg MeiliConfig) (*MeiliIndex, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, errors.New("search: meilisearch host is required")
	}
	if !strings.HasPrefix(host, "http") {
		host = "http://" + host
	}
	return NewMeiliIndexWithClient(meilisearch.New(host, meilisearch.WithAPIKey(cfg.APIKey)), cfg.Index), nil
}

// NewMeiliIndexWithClient wraps an existing client.
func NewMeiliIndexWithClient(client meilisearch.ServiceManager, index string) *MeiliIndex {
	index = strings.TrimSpace(index)
	if index == "" {
		index = defaultIndexName
	}
	return &MeiliIndex{client: client, index: index}
}

// Ping reports whether the Meilisearch server answers its health endpoint.
func (m *MeiliIndex) Ping(context.Context) error {
	if _, err := m.client.Health(); err != nil {
		return fmt.Errorf("search: meilisearch health: %w", err)
	}
	return nil
}

// Configure declares the filterable and sortable attributes of the index.
func (m *MeiliIndex) Configure(context.Context) error {
	filterable := []any{"unit", "role"}
	if _, err := m.client.Index(m.index).UpdateFilterableAttributes(&filterable); err != nil {
		return fmt.Errorf("search: update filterable attributes: %w", err)
	}
	sortable := []string{"name", "avg_rating"}
	if _, err := m.client.Index(m.index).UpdateSortableAttributes(&sortable); err != nil {
		return fmt.Errorf("search: update sortable attributes: %w", err)
	}
	return nil
}

// Upsert adds or replaces documents keyed by id.
func (m *MeiliIndex) Upsert(_ context.Context, docs ...TeacherDocument) error {
	if len(docs) == 0 {
		return nil
	}
	if _, err := m.client.Index(m.index).AddDocuments(docs, strPtr("id")); err != nil {
		return fmt.Errorf("search: add documents: %w", err)
	}
	return nil
}

// Remove deletes the document for id.
func (m *MeiliIndex) Remove(_ context.Context, id uint) error {
	if _, err := m.client.Index(m.index).DeleteDocument(strconv.FormatUint(uint64(id), 10)); err != nil {
		return fmt.Errorf("search: delete document: %w", err)
	}
	return nil
}

// Search returns matching teacher ids in relevance order.
func (m *MeiliIndex) Search(_ context.Context, query string, limit int) ([]uint, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	resp, err := m.client.Index(m.index).Search(strings.TrimSpace(query), &meilisearch.SearchRequest{
		Limit:                int64(limit),
		AttributesToRetrieve: []string{"id"},
	})
	if err != nil {
		return nil, fmt.Errorf("search: query: %w", err)
	}

	raw, err := json.Marshal(resp.Hits)
	if err != nil {
		return nil, fmt.Errorf("search: encode hits: %w", err)
	}
	var hits []struct {
		ID uint `json:"id"`
	}
	if err := json.Unmarshal(raw, &hits); err != nil {
		return nil, fmt.Errorf("search: decode hits: %w", err)
	}

	ids := make([]uint, 0, len(hits))
	for _, hit := range hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

func strPtr(s string) *string {
	return &s
}
