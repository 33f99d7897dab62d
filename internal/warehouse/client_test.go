package warehouse

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"replenish/internal/config"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func testConfig() config.Config {
	cfg, _ := config.Load()
	cfg.WarehouseGraphQLEndpoint = "https://example.test/graphql"
	cfg.WarehouseAccessToken = "test-token"
	cfg.WarehouseID = "warehouse-1"
	cfg.WarehouseRateLimitRPS = 1000
	cfg.WarehouseThrottleCapSec = 60
	return cfg
}

func jsonResponse(payload any) *http.Response {
	blob, _ := json.Marshal(payload)
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(string(blob))),
		Header:     make(http.Header),
	}
}

func stockPage(nodes []map[string]any, hasNext bool, cursor string) map[string]any {
	edges := make([]map[string]any, 0, len(nodes))
	for _, node := range nodes {
		edges = append(edges, map[string]any{"node": node})
	}
	return map[string]any{
		"data": map[string]any{
			"warehouse_products": map[string]any{
				"data": map[string]any{
					"pageInfo": map[string]any{"hasNextPage": hasNext, "endCursor": cursor},
					"edges":    edges,
				},
			},
		},
	}
}

func TestStockLevelsPaginatesAndRetriesThrottle(t *testing.T) {
	cfg := testConfig()
	client := NewClient(cfg, NewTokenProvider(cfg, nil))

	attempt := 0
	client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
				t.Fatalf("authorization=%q", got)
			}
			attempt++
			switch attempt {
			case 1:
				return jsonResponse(stockPage([]map[string]any{
					{"id": "wh-1", "sku": "SKU-A", "on_hand": 10, "allocated": 2, "available": 8, "backorder": 0},
				}, true, "cursor-1")), nil
			case 2:
				// Throttled with a short server-specified wait; must retry.
				return jsonResponse(map[string]any{
					"errors": []map[string]any{{"message": "throttled", "code": 30, "time_remaining": "1 seconds"}},
				}), nil
			case 3:
				return jsonResponse(stockPage([]map[string]any{
					{"id": "wh-2", "sku": "SKU-B", "on_hand": 3},
				}, false, "")), nil
			}
			t.Fatalf("unexpected attempt %d", attempt)
			return nil, nil
		}),
	}

	levels, err := client.StockLevels(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(levels) != 2 {
		t.Fatalf("len=%d", len(levels))
	}
	if levels[0].SKU != "SKU-A" || levels[0].OnHand != 10 {
		t.Fatalf("first level: %+v", levels[0])
	}
	if levels[1].SKU != "SKU-B" {
		t.Fatalf("second level: %+v", levels[1])
	}
}

func TestExecuteStopsWhenThrottleCapExceeded(t *testing.T) {
	cfg := testConfig()
	cfg.WarehouseThrottleCapSec = 1
	client := NewClient(cfg, NewTokenProvider(cfg, nil))

	client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return jsonResponse(map[string]any{
				"errors": []map[string]any{{"message": "throttled", "code": 30, "time_remaining": "1 seconds"}},
			}), nil
		}),
	}

	_, err := client.execute(context.Background(), "query { x }", nil)
	if err == nil || !strings.Contains(err.Error(), "throttle") {
		t.Fatalf("err=%v", err)
	}
}

func TestExecuteReturnsNonThrottleErrors(t *testing.T) {
	cfg := testConfig()
	client := NewClient(cfg, NewTokenProvider(cfg, nil))

	client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return jsonResponse(map[string]any{
				"errors": []map[string]any{{"message": "bad vendor", "code": 22}},
			}), nil
		}),
	}

	_, err := client.execute(context.Background(), "query { x }", nil)
	if err == nil || !strings.Contains(err.Error(), "bad vendor") {
		t.Fatalf("err=%v", err)
	}
}

func TestParseWaitSeconds(t *testing.T) {
	if got := parseWaitSeconds("58 seconds"); got != 58*time.Second {
		t.Fatalf("got %s", got)
	}
	if got := parseWaitSeconds("garbage"); got != defaultThrottleWait {
		t.Fatalf("got %s", got)
	}
	if got := parseWaitSeconds(""); got != defaultThrottleWait {
		t.Fatalf("got %s", got)
	}
}

func TestCreatePurchaseOrder(t *testing.T) {
	cfg := testConfig()
	client := NewClient(cfg, NewTokenProvider(cfg, nil))

	client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			body, _ := io.ReadAll(r.Body)
			var req struct {
				Variables struct {
					Data CreatePORequest `json:"data"`
				} `json:"variables"`
			}
			if err := json.Unmarshal(body, &req); err != nil {
				t.Fatal(err)
			}
			if req.Variables.Data.PONumber != "1042" || req.Variables.Data.Subtotal != "30.10" {
				t.Fatalf("mutation input: %+v", req.Variables.Data)
			}

			return jsonResponse(map[string]any{
				"data": map[string]any{
					"purchase_order_create": map[string]any{
						"purchase_order": map[string]any{
							"id":        "wh-po-1",
							"po_number": "1042",
							"line_items": map[string]any{
								"edges": []map[string]any{
									{"node": map[string]any{"id": "wh-li-1", "sku": "SKU-A", "quantity": 10}},
								},
							},
						},
					},
				},
			}), nil
		}),
	}

	created, err := client.CreatePurchaseOrder(context.Background(), CreatePORequest{
		PONumber:      "1042",
		VendorID:      "vendor-1",
		WarehouseID:   "warehouse-1",
		Subtotal:      "30.10",
		ShippingPrice: "0.00",
		TotalPrice:    "30.10",
		LineItems:     []CreatePOLineItem{{SKU: "SKU-A", Quantity: 10, Price: "3.01", ExpectedWeightLbs: "0.0"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if created.ID != "wh-po-1" || len(created.LineItems) != 1 || created.LineItems[0].ID != "wh-li-1" {
		t.Fatalf("created: %+v", created)
	}
}

func TestTokenProviderRefreshesExpiredToken(t *testing.T) {
	cfg := testConfig()
	cfg.WarehouseRefreshToken = "refresh-1"

	provider := NewTokenProvider(cfg, nil)
	provider.expiresAt = time.Now().Add(-time.Hour)
	provider.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			body, _ := io.ReadAll(r.Body)
			if !strings.Contains(string(body), "refresh-1") {
				t.Fatalf("body=%s", body)
			}
			return jsonResponse(map[string]any{"access_token": "fresh-token", "expires_in": 3600}), nil
		}),
	}

	token, err := provider.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if token != "fresh-token" {
		t.Fatalf("token=%s", token)
	}

	// Second call must reuse the refreshed token without another request.
	provider.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			t.Fatal("unexpected refresh")
			return nil, nil
		}),
	}
	token, err = provider.Token(context.Background())
	if err != nil || token != "fresh-token" {
		t.Fatalf("token=%s err=%v", token, err)
	}
}
