package warehouse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"replenish/internal"
	"replenish/internal/config"
)

// Error code the warehouse API returns when a request is throttled. Throttled
// requests are retried after the server-specified wait; every other error is
// terminal for the enclosing job.
const throttleErrorCode = 30

const defaultThrottleWait = 5 * time.Second

type Client struct {
	cfg        config.Config
	httpClient *http.Client
	tokens     *TokenProvider
	limiter    *RateLimiter
}

func NewClient(cfg config.Config, tokens *TokenProvider) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.WarehouseTimeoutMs) * time.Millisecond},
		tokens:     tokens,
		limiter:    NewRateLimiter(cfg.WarehouseRateLimitRPS),
	}
}

type graphQLError struct {
	Message       string `json:"message"`
	Code          int    `json:"code"`
	TimeRemaining string `json:"time_remaining"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

func (c *Client) execute(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	payload, err := json.Marshal(map[string]any{"query": query, "variables": variables})
	if err != nil {
		return nil, err
	}

	throttleCap := time.Duration(c.cfg.WarehouseThrottleCapSec) * time.Second
	var waited time.Duration

	for {
		if err := c.limiter.WaitTurn(ctx); err != nil {
			return nil, err
		}

		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.WarehouseGraphQLEndpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("warehouse api error: status=%d body=%s", resp.StatusCode, string(body))
		}

		var parsed graphQLResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, err
		}

		if len(parsed.Errors) > 0 {
			first := parsed.Errors[0]
			if first.Code == throttleErrorCode {
				wait := parseWaitSeconds(first.TimeRemaining)
				waited += wait
				if waited > throttleCap {
					return nil, fmt.Errorf("warehouse throttle wait exceeded %s", throttleCap)
				}
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(wait):
				}
				continue
			}
			return nil, fmt.Errorf("warehouse api error: %s", first.Message)
		}

		return parsed.Data, nil
	}
}

// parseWaitSeconds reads the "N seconds" wait hint attached to a throttle
// error.
func parseWaitSeconds(value string) time.Duration {
	fields := strings.Fields(value)
	if len(fields) > 0 {
		if n, err := strconv.Atoi(fields[0]); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return defaultThrottleWait
}

type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type connection struct {
	Data struct {
		PageInfo *pageInfo `json:"pageInfo"`
		Edges    []struct {
			Node json.RawMessage `json:"node"`
		} `json:"edges"`
	} `json:"data"`
}

// paginate walks a cursor-paginated connection and collects the node blobs.
func (c *Client) paginate(ctx context.Context, query, dataKey string, variables map[string]any) ([]json.RawMessage, error) {
	var nodes []json.RawMessage
	var cursor *string

	for {
		vars := map[string]any{}
		for k, v := range variables {
			vars[k] = v
		}
		vars["after"] = cursor

		data, err := c.execute(ctx, query, vars)
		if err != nil {
			return nil, err
		}

		var envelope map[string]connection
		if err := json.Unmarshal(data, &envelope); err != nil {
			return nil, err
		}
		conn, ok := envelope[dataKey]
		if !ok {
			return nil, fmt.Errorf("warehouse response missing %q", dataKey)
		}

		for _, edge := range conn.Data.Edges {
			nodes = append(nodes, edge.Node)
		}

		if conn.Data.PageInfo == nil || !conn.Data.PageInfo.HasNextPage || len(conn.Data.Edges) == 0 {
			break
		}
		next := conn.Data.PageInfo.EndCursor
		cursor = &next
	}

	return nodes, nil
}

const stockLevelsQuery = `
query ($warehouse_id: String, $first: Int!, $after: String) {
  warehouse_products(warehouse_id: $warehouse_id, active: true) {
    complexity
    request_id
    data(first: $first, after: $after) {
      pageInfo {
        hasNextPage
        endCursor
      }
      edges {
        node {
          id
          sku
          on_hand
          allocated
          available
          backorder
        }
      }
    }
  }
}
`

func (c *Client) StockLevels(ctx context.Context) ([]internal.WarehouseStockLevel, error) {
	nodes, err := c.paginate(ctx, stockLevelsQuery, "warehouse_products", map[string]any{
		"warehouse_id": c.cfg.WarehouseID,
		"first":        100,
	})
	if err != nil {
		return nil, err
	}

	out := make([]internal.WarehouseStockLevel, 0, len(nodes))
	for _, node := range nodes {
		var raw struct {
			ID        string `json:"id"`
			SKU       string `json:"sku"`
			OnHand    int    `json:"on_hand"`
			Allocated int    `json:"allocated"`
			Available int    `json:"available"`
			Backorder int    `json:"backorder"`
		}
		if err := json.Unmarshal(node, &raw); err != nil {
			continue
		}
		out = append(out, internal.WarehouseStockLevel{
			ID:        raw.ID,
			SKU:       raw.SKU,
			OnHand:    raw.OnHand,
			Allocated: raw.Allocated,
			Available: raw.Available,
			Backorder: raw.Backorder,
		})
	}

	return out, nil
}

const purchaseOrdersQuery = `
query ($first: Int!, $after: String, $created_from: ISODateTime, $warehouse_id: String) {
  purchase_orders(created_from: $created_from, warehouse_id: $warehouse_id) {
    complexity
    request_id
    data(first: $first, after: $after) {
      pageInfo {
        hasNextPage
        endCursor
      }
      edges {
        node {
          id
          po_number
          fulfillment_status
          line_items {
            edges {
              node {
                id
                sku
                quantity
                quantity_received
              }
            }
          }
        }
      }
    }
  }
}
`

type warehousePONode struct {
	ID                string `json:"id"`
	PONumber          string `json:"po_number"`
	FulfillmentStatus string `json:"fulfillment_status"`
	LineItems         struct {
		Edges []struct {
			Node struct {
				ID               string `json:"id"`
				SKU              string `json:"sku"`
				Quantity         int    `json:"quantity"`
				QuantityReceived int    `json:"quantity_received"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"line_items"`
}

func (n warehousePONode) toRecord() internal.WarehousePurchaseOrder {
	po := internal.WarehousePurchaseOrder{
		ID:                n.ID,
		PONumber:          n.PONumber,
		FulfillmentStatus: n.FulfillmentStatus,
	}
	for _, edge := range n.LineItems.Edges {
		po.LineItems = append(po.LineItems, internal.WarehouseLineItem{
			ID:       edge.Node.ID,
			SKU:      edge.Node.SKU,
			Quantity: edge.Node.Quantity,
			Received: edge.Node.QuantityReceived,
		})
	}
	return po
}

// PurchaseOrders fetches warehouse purchase orders created on or after
// createdFrom.
func (c *Client) PurchaseOrders(ctx context.Context, createdFrom time.Time) ([]internal.WarehousePurchaseOrder, error) {
	nodes, err := c.paginate(ctx, purchaseOrdersQuery, "purchase_orders", map[string]any{
		"first":        10,
		"created_from": createdFrom.UTC().Format("2006-01-02T15:04:05") + "Z",
		"warehouse_id": c.cfg.WarehouseID,
	})
	if err != nil {
		return nil, err
	}

	out := make([]internal.WarehousePurchaseOrder, 0, len(nodes))
	for _, node := range nodes {
		var raw warehousePONode
		if err := json.Unmarshal(node, &raw); err != nil {
			continue
		}
		out = append(out, raw.toRecord())
	}

	return out, nil
}

// CreatePORequest is the purchase_order_create input, prices already rendered
// with two fractional digits.
type CreatePORequest struct {
	PONumber      string             `json:"po_number"`
	VendorID      string             `json:"vendor_id"`
	WarehouseID   string             `json:"warehouse_id"`
	Subtotal      string             `json:"subtotal"`
	ShippingPrice string             `json:"shipping_price"`
	TotalPrice    string             `json:"total_price"`
	LineItems     []CreatePOLineItem `json:"line_items"`
}

type CreatePOLineItem struct {
	SKU               string `json:"sku"`
	Quantity          int    `json:"quantity"`
	Price             string `json:"price"`
	ExpectedWeightLbs string `json:"expected_weight_in_lbs"`
}

const createPurchaseOrderMutation = `
mutation ($data: CreatePurchaseOrderInput!) {
  purchase_order_create(data: $data) {
    request_id
    complexity
    purchase_order {
      id
      po_number
      fulfillment_status
      line_items {
        edges {
          node {
            id
            sku
            quantity
            quantity_received
          }
        }
      }
    }
  }
}
`

func (c *Client) CreatePurchaseOrder(ctx context.Context, req CreatePORequest) (internal.WarehousePurchaseOrder, error) {
	data, err := c.execute(ctx, createPurchaseOrderMutation, map[string]any{"data": req})
	if err != nil {
		return internal.WarehousePurchaseOrder{}, err
	}

	var payload struct {
		PurchaseOrderCreate struct {
			PurchaseOrder warehousePONode `json:"purchase_order"`
		} `json:"purchase_order_create"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return internal.WarehousePurchaseOrder{}, err
	}
	created := payload.PurchaseOrderCreate.PurchaseOrder
	if created.ID == "" {
		return internal.WarehousePurchaseOrder{}, fmt.Errorf("purchase_order_create returned no purchase order for %s", req.PONumber)
	}

	return created.toRecord(), nil
}
