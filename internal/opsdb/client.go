package opsdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"replenish/internal/config"
)

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	baseID     string
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(cfg.OpsDBBaseURL, "/"),
		apiKey:     cfg.OpsDBAPIKey,
		baseID:     cfg.OpsDBBaseID,
	}
}

type Record struct {
	ID          string         `json:"id"`
	CreatedTime time.Time      `json:"createdTime"`
	Fields      map[string]any `json:"fields"`
}

// Where restricts a field to any of the given values. Clauses in a ListQuery
// are combined with AND, values within one clause with OR.
type Where struct {
	Field string
	AnyOf []string
}

// ListQuery is the typed query surface of the ops database. Callers never
// build filter formula strings; the client compiles them here.
type ListQuery struct {
	View   string
	Fields []string
	Where  []Where
}

func (q ListQuery) formula() string {
	clauses := make([]string, 0, len(q.Where))
	for _, w := range q.Where {
		terms := make([]string, 0, len(w.AnyOf))
		for _, v := range w.AnyOf {
			terms = append(terms, fmt.Sprintf("{%s} = '%s'", w.Field, strings.ReplaceAll(v, "'", "\\'")))
		}
		switch len(terms) {
		case 0:
		case 1:
			clauses = append(clauses, terms[0])
		default:
			clauses = append(clauses, "OR("+strings.Join(terms, ", ")+")")
		}
	}
	switch len(clauses) {
	case 0:
		return ""
	case 1:
		return clauses[0]
	default:
		return "AND(" + strings.Join(clauses, ", ") + ")"
	}
}

func (c *Client) ListRecords(ctx context.Context, table string, q ListQuery) ([]Record, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return nil, errors.New("missing OPSDB_API_KEY")
	}

	var out []Record
	offset := ""

	for {
		params := url.Values{}
		if q.View != "" {
			params.Set("view", q.View)
		}
		for _, f := range q.Fields {
			params.Add("fields[]", f)
		}
		if formula := q.formula(); formula != "" {
			params.Set("filterByFormula", formula)
		}
		if offset != "" {
			params.Set("offset", offset)
		}

		endpoint := fmt.Sprintf("%s/%s/%s?%s", c.baseURL, c.baseID, url.PathEscape(table), params.Encode())
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		body, err := c.do(req)
		if err != nil {
			return nil, err
		}

		var page struct {
			Records []Record `json:"records"`
			Offset  string   `json:"offset"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Records...)

		if page.Offset == "" {
			break
		}
		offset = page.Offset
	}

	return out, nil
}

func (c *Client) UpdateRecord(ctx context.Context, table, recordID string, fields map[string]any) error {
	payload, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/%s/%s/%s", c.baseURL, c.baseID, url.PathEscape(table), recordID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	_, err = c.do(req)
	return err
}

// CreateRecords inserts the given field sets, batching per the API's
// 10-records-per-request limit, and returns the created records in order.
func (c *Client) CreateRecords(ctx context.Context, table string, fieldSets []map[string]any) ([]Record, error) {
	var created []Record

	for start := 0; start < len(fieldSets); start += 10 {
		end := start + 10
		if end > len(fieldSets) {
			end = len(fieldSets)
		}

		batch := make([]map[string]any, 0, end-start)
		for _, fields := range fieldSets[start:end] {
			batch = append(batch, map[string]any{"fields": fields})
		}
		payload, err := json.Marshal(map[string]any{"records": batch})
		if err != nil {
			return nil, err
		}

		endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, c.baseID, url.PathEscape(table))
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		body, err := c.do(req)
		if err != nil {
			return nil, err
		}

		var page struct {
			Records []Record `json:"records"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, err
		}
		created = append(created, page.Records...)
	}

	return created, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ops db api error: status=%d body=%s", resp.StatusCode, string(body))
	}
	return body, nil
}

// Field coercion helpers. Source fields are loosely typed: linked-record
// lookups arrive as single-element lists and numbers arrive as float64.
// Shapes are resolved here, once, at the adapter boundary.

func stringField(fields map[string]any, name string) string {
	switch v := fields[name].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			switch t := item.(type) {
			case string:
				parts = append(parts, t)
			case float64:
				parts = append(parts, strconv.FormatFloat(t, 'f', -1, 64))
			}
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}

func intField(fields map[string]any, name string) int {
	switch v := fields[name].(type) {
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	case []any:
		if len(v) > 0 {
			if f, ok := v[0].(float64); ok {
				return int(f)
			}
		}
	}
	return 0
}

func floatField(fields map[string]any, name string) float64 {
	switch v := fields[name].(type) {
	case float64:
		return v
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	case []any:
		if len(v) > 0 {
			if f, ok := v[0].(float64); ok {
				return f
			}
		}
	}
	return 0
}
