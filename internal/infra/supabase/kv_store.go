package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/boddenberg/security-assessment-go/internal/port"

	"go.opentelemetry.io/otel/attribute"
)

const kvTable = "kv_entries"

// kvRow maps the kv_entries table columns.
type kvRow struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// KVStore implements port.KVStore on a PostgREST table with columns
// key (text primary key), value (text) and updated_at (timestamptz).
type KVStore struct {
	client *Client
}

// NewKVStore creates the adapter.
func NewKVStore(c *Client) *KVStore {
	return &KVStore{client: c}
}

func keyFilter(key string) string {
	return fmt.Sprintf("%s?key=eq.%s", kvTable, url.QueryEscape(key))
}

func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "Supabase.KV.Get")
	defer span.End()
	span.SetAttributes(attribute.String("kv.key", key))

	resp, err := s.client.call(ctx, http.MethodGet, keyFilter(key)+"&select=key,value&limit=1", nil, "")
	if err != nil {
		return nil, err
	}
	if resp.status == http.StatusNotFound {
		return nil, port.ErrKeyNotFound
	}
	if resp.status != http.StatusOK {
		return nil, fmt.Errorf("supabase GET %s returned %d: %s", kvTable, resp.status, string(resp.body))
	}

	var rows []kvRow
	if err := json.Unmarshal(resp.body, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode kv row: %w", err)
	}
	if len(rows) == 0 {
		return nil, port.ErrKeyNotFound
	}
	return []byte(rows[0].Value), nil
}

func (s *KVStore) Put(ctx context.Context, key string, value []byte) error {
	ctx, span := tracer.Start(ctx, "Supabase.KV.Put")
	defer span.End()
	span.SetAttributes(attribute.String("kv.key", key))

	body, err := rowBody(key, value)
	if err != nil {
		return err
	}
	resp, err := s.client.call(ctx, http.MethodPost, kvTable+"?on_conflict=key", body, "resolution=merge-duplicates,return=minimal")
	if err != nil {
		return err
	}
	if resp.status < 200 || resp.status >= 300 {
		return fmt.Errorf("supabase upsert %s returned %d: %s", kvTable, resp.status, string(resp.body))
	}
	return nil
}

func (s *KVStore) PutIfAbsent(ctx context.Context, key string, value []byte) error {
	ctx, span := tracer.Start(ctx, "Supabase.KV.PutIfAbsent")
	defer span.End()
	span.SetAttributes(attribute.String("kv.key", key))

	body, err := rowBody(key, value)
	if err != nil {
		return err
	}
	resp, err := s.client.call(ctx, http.MethodPost, kvTable, body, "return=minimal")
	if err != nil {
		return err
	}
	if resp.status == http.StatusConflict {
		return port.ErrKeyExists
	}
	if resp.status < 200 || resp.status >= 300 {
		return fmt.Errorf("supabase insert %s returned %d: %s", kvTable, resp.status, string(resp.body))
	}
	return nil
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "Supabase.KV.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("kv.key", key))

	resp, err := s.client.call(ctx, http.MethodDelete, keyFilter(key), nil, "return=minimal")
	if err != nil {
		return err
	}
	if resp.status == http.StatusNotFound {
		return nil
	}
	if resp.status < 200 || resp.status >= 300 {
		return fmt.Errorf("supabase DELETE %s returned %d: %s", kvTable, resp.status, string(resp.body))
	}
	return nil
}

func (s *KVStore) Ping(ctx context.Context) error {
	resp, err := s.client.call(ctx, http.MethodGet, kvTable+"?select=key&limit=1", nil, "")
	if err != nil {
		return err
	}
	if resp.status != http.StatusOK {
		return fmt.Errorf("supabase ping returned %d", resp.status)
	}
	return nil
}

func (s *KVStore) Close(context.Context) error { return nil }

func rowBody(key string, value []byte) ([]byte, error) {
	return json.Marshal(kvRow{
		Key:       key,
		Value:     string(value),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
}
