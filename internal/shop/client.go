package shop

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"replenish/internal"
	"replenish/internal/config"
	"replenish/internal/logger"
)

// Client runs bulk operations against the shop GraphQL API. Bulk results
// arrive as JSONL: one object per line, child objects carrying a __parentId
// back-reference instead of being nested.
type Client struct {
	cfg        config.Config
	httpClient *http.Client
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) graphQL(ctx context.Context, query string) (json.RawMessage, error) {
	payload, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ShopGraphQLEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Shopify-Access-Token", c.cfg.ShopAPIToken)
	req.Header.Set("Content-Type", "application/json")

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
		return nil, fmt.Errorf("shop api error: status=%d body=%s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("shop api error: %s", parsed.Errors[0].Message)
	}
	return parsed.Data, nil
}

func (c *Client) startBulkOperation(ctx context.Context, innerQuery string) error {
	mutation := fmt.Sprintf(`
mutation {
  bulkOperationRunQuery(
    query: """
    %s
    """
  ) {
    bulkOperation {
      id
      status
    }
    userErrors {
      field
      message
    }
  }
}
`, innerQuery)

	data, err := c.graphQL(ctx, mutation)
	if err != nil {
		return err
	}

	var payload struct {
		BulkOperationRunQuery struct {
			BulkOperation struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"bulkOperation"`
			UserErrors []struct {
				Message string `json:"message"`
			} `json:"userErrors"`
		} `json:"bulkOperationRunQuery"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	if len(payload.BulkOperationRunQuery.UserErrors) > 0 {
		return fmt.Errorf("bulk operation rejected: %s", payload.BulkOperationRunQuery.UserErrors[0].Message)
	}
	if payload.BulkOperationRunQuery.BulkOperation.ID == "" {
		return errors.New("bulk operation rejected: no operation id returned")
	}
	return nil
}

const bulkStatusQuery = `
{
  currentBulkOperation {
    id
    status
    errorCode
    objectCount
    url
  }
}
`

// pollBulkOperation waits for the current bulk operation to finish and returns
// its result URL.
func (c *Client) pollBulkOperation(ctx context.Context) (string, error) {
	interval := time.Duration(c.cfg.ShopPollIntervalSec) * time.Second

	for {
		data, err := c.graphQL(ctx, bulkStatusQuery)
		if err != nil {
			return "", err
		}

		var payload struct {
			CurrentBulkOperation *struct {
				Status    string `json:"status"`
				ErrorCode string `json:"errorCode"`
				URL       string `json:"url"`
			} `json:"currentBulkOperation"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return "", err
		}
		op := payload.CurrentBulkOperation
		if op == nil {
			return "", errors.New("no current bulk operation found")
		}

		switch op.Status {
		case "COMPLETED":
			return op.URL, nil
		case "FAILED", "CANCELED":
			return "", fmt.Errorf("bulk operation %s: %s", op.Status, op.ErrorCode)
		}

		logger.Debugw("bulk operation pending", "status", op.Status)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}
	}
}

// runBulkOperation starts a bulk query, waits for completion and streams the
// JSONL result lines through handle. A completed operation with no matching
// objects has no result URL; that is an empty result, not an error.
func (c *Client) runBulkOperation(ctx context.Context, innerQuery string, handle func(line json.RawMessage) error) error {
	if err := c.startBulkOperation(ctx, innerQuery); err != nil {
		return err
	}

	resultURL, err := c.pollBulkOperation(ctx)
	if err != nil {
		return err
	}
	if resultURL == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("bulk result download failed: status=%d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		raw := make(json.RawMessage, len(line))
		copy(raw, line)
		if err := handle(raw); err != nil {
			return err
		}
	}
	return scanner.Err()
}

const salesQueryTemplate = `
{
  orders(query: "created_at:>=%s AND (fulfillment_status:shipped OR fulfillment_status:unfulfilled OR fulfillment_status:partial) AND (financial_status:paid OR financial_status:pending) AND -tag:'Exclude from Forecast'") {
    edges {
      node {
        id
        name
        createdAt
        lineItems(first: 100) {
          edges {
            node {
              id
              sku
              quantity
            }
          }
        }
      }
    }
  }
}
`

// SalesRecords fetches orders created in the nine weeks before now, flattened
// into one record per order and per line item. The window is one week wider
// than the eight materialized sales buckets so the oldest bucket is never
// clipped by the fetch filter.
func (c *Client) SalesRecords(ctx context.Context, now time.Time) ([]internal.SalesRecord, error) {
	from := now.AddDate(0, 0, -9*7).Format("2006-01-02")
	query := fmt.Sprintf(salesQueryTemplate, from)

	var out []internal.SalesRecord
	err := c.runBulkOperation(ctx, query, func(line json.RawMessage) error {
		var raw struct {
			ID        string `json:"id"`
			ParentID  string `json:"__parentId"`
			Name      string `json:"name"`
			CreatedAt string `json:"createdAt"`
			SKU       string `json:"sku"`
			Quantity  int    `json:"quantity"`
		}
		if err := json.Unmarshal(line, &raw); err != nil {
			return err
		}

		record := internal.SalesRecord{
			ID:       raw.ID,
			ParentID: raw.ParentID,
			Name:     raw.Name,
			SKU:      raw.SKU,
			Quantity: raw.Quantity,
		}
		if raw.CreatedAt != "" {
			created, err := time.Parse(time.RFC3339, raw.CreatedAt)
			if err != nil {
				return fmt.Errorf("order %s: bad createdAt %q", raw.ID, raw.CreatedAt)
			}
			record.CreatedAt = created
		}
		out = append(out, record)
		return nil
	})
	return out, err
}

const inventoryQuery = `
{
  products(query: "status:ACTIVE") {
    edges {
      node {
        id
        variants {
          edges {
            node {
              id
              sku
              inventoryItem {
                id
                inventoryLevels {
                  edges {
                    node {
                      location {
                        id
                      }
                      quantities(names: ["committed"]) {
                        name
                        quantity
                      }
                    }
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}
`

// InventoryLevels fetches active variants and their per-location committed
// quantities. Variant lines carry a sku; level lines carry quantities and a
// __parentId pointing at their variant.
func (c *Client) InventoryLevels(ctx context.Context) ([]internal.InventoryVariant, []internal.InventoryLevel, error) {
	var variants []internal.InventoryVariant
	var levels []internal.InventoryLevel

	err := c.runBulkOperation(ctx, inventoryQuery, func(line json.RawMessage) error {
		var raw struct {
			ID       string  `json:"id"`
			ParentID string  `json:"__parentId"`
			SKU      *string `json:"sku"`
			Location *struct {
				ID string `json:"id"`
			} `json:"location"`
			Quantities []struct {
				Name     string `json:"name"`
				Quantity int    `json:"quantity"`
			} `json:"quantities"`
		}
		if err := json.Unmarshal(line, &raw); err != nil {
			return err
		}

		switch {
		case raw.SKU != nil:
			variants = append(variants, internal.InventoryVariant{ID: raw.ID, SKU: *raw.SKU})
		case raw.Quantities != nil && raw.Location != nil:
			level := internal.InventoryLevel{
				VariantID:  raw.ParentID,
				LocationID: raw.Location.ID,
			}
			for _, q := range raw.Quantities {
				if q.Name == "committed" {
					level.Committed = q.Quantity
				}
			}
			levels = append(levels, level)
		}
		return nil
	})
	return variants, levels, err
}
