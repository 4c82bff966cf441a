package cart_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/masyukai/cart/internal/cart"
	"github.com/masyukai/cart/internal/common"
	"github.com/masyukai/cart/internal/storage"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	h := cart.NewHandler(cart.Handler{
		Storage: storage.NewMemory(),
		Policy:  usd,
		Logger:  zerolog.Nop(),
	})
	r := chi.NewRouter()
	r.Route("/api/v1/carts", h.Routes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeData(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope.Data
}

func TestCreateCart(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/api/v1/carts/", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	data := decodeData(t, resp)
	require.NotEmpty(t, data["id"])
	require.Equal(t, "default", data["instance"])
}

func TestItemLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/api/v1/carts/cart-1"

	resp := do(t, http.MethodPost, base+"/items", map[string]any{
		"id": "sku-1", "name": "Widget", "price": "19.99", "quantity": 2,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// merge on duplicate add
	resp = do(t, http.MethodPost, base+"/items", map[string]any{
		"id": "sku-1", "name": "Widget", "price": "19.99", "quantity": 1,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = do(t, http.MethodGet, base+"/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := decodeData(t, resp)
	items := data["items"].([]any)
	require.Len(t, items, 1)
	agg := data["aggregates"].(map[string]any)
	require.EqualValues(t, 3, agg["total_quantity"])

	resp = do(t, http.MethodPatch, base+"/items/sku-1", map[string]any{
		"quantity": map[string]any{"relative": false, "value": 1},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data = decodeData(t, resp)
	require.EqualValues(t, 1, data["quantity"])

	resp = do(t, http.MethodDelete, base+"/items/sku-1", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = do(t, http.MethodDelete, base+"/items/sku-1", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestItemValidationOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/api/v1/carts/cart-1"

	cases := []map[string]any{
		{"name": "Widget", "price": "10.00", "quantity": 1},
		{"id": "sku-1", "price": "10.00", "quantity": 1},
		{"id": "sku-1", "name": "Widget", "quantity": 1},
		{"id": "sku-1", "name": "Widget", "price": "10.00"},
		{"id": "sku-1", "name": "Widget", "price": "abc", "quantity": 1},
		{"id": "sku-1", "name": "Widget", "price": "-1.00", "quantity": 1},
	}
	for i, payload := range cases {
		resp := do(t, http.MethodPost, base+"/items", payload)
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, fmt.Sprintf("case %d", i))
		resp.Body.Close()
	}
}

func TestConditionsOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/api/v1/carts/cart-1"

	resp := do(t, http.MethodPost, base+"/items", map[string]any{
		"id": "sku-1", "name": "Widget", "price": "100.00", "quantity": 1,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = do(t, http.MethodPost, base+"/conditions", map[string]any{
		"name": "vat", "type": "tax", "target": "subtotal", "value": "10%",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// duplicate name conflicts
	resp = do(t, http.MethodPost, base+"/conditions", map[string]any{
		"name": "vat", "type": "tax", "target": "subtotal", "value": "10%",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// item-targeted conditions are rejected at cart level
	resp = do(t, http.MethodPost, base+"/conditions", map[string]any{
		"name": "line-fee", "type": "fee", "target": "item", "value": "+1",
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()

	resp = do(t, http.MethodGet, base+"/quote", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := decodeData(t, resp)
	subtotal := data["subtotal"].(map[string]any)
	require.Equal(t, "110.00", subtotal["amount"])

	resp = do(t, http.MethodDelete, base+"/conditions/vat", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = do(t, http.MethodDelete, base+"/conditions/vat", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestDynamicConditionsOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/api/v1/carts/cart-1"

	resp := do(t, http.MethodPost, base+"/dynamic-conditions", map[string]any{
		"name": "bulk-discount", "type": "discount", "target": "total", "value": "-15%",
		"rules": []map[string]any{{"key": "min-items", "params": map[string]any{"count": 2}}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// unknown rule key is refused at registration
	resp = do(t, http.MethodPost, base+"/dynamic-conditions", map[string]any{
		"name": "mystery", "type": "discount", "target": "total", "value": "-5%",
		"rules": []map[string]any{{"key": "frequent-buyer"}},
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()

	for _, sku := range []string{"sku-a", "sku-b"} {
		resp = do(t, http.MethodPost, base+"/items", map[string]any{
			"id": sku, "name": sku, "price": "10.00", "quantity": 1,
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	resp = do(t, http.MethodGet, base+"/quote", nil)
	data := decodeData(t, resp)
	total := data["total"].(map[string]any)
	require.Equal(t, "17.00", total["amount"])

	resp = do(t, http.MethodDelete, base+"/dynamic-conditions/bulk-discount", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = do(t, http.MethodGet, base+"/quote", nil)
	data = decodeData(t, resp)
	total = data["total"].(map[string]any)
	require.Equal(t, "20.00", total["amount"])
}

func TestClearOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/api/v1/carts/cart-1"

	resp := do(t, http.MethodPost, base+"/items", map[string]any{
		"id": "sku-1", "name": "Widget", "price": "10.00", "quantity": 1,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = do(t, http.MethodDelete, base+"/", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = do(t, http.MethodGet, base+"/", nil)
	data := decodeData(t, resp)
	require.Empty(t, data["items"])
}

func TestInstanceQueryParam(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/api/v1/carts/cart-1"

	resp := do(t, http.MethodPost, base+"/items?instance=wishlist", map[string]any{
		"id": "sku-1", "name": "Widget", "price": "10.00", "quantity": 1,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = do(t, http.MethodGet, base+"/", nil)
	data := decodeData(t, resp)
	require.Empty(t, data["items"])

	resp = do(t, http.MethodGet, base+"/?instance=wishlist", nil)
	data = decodeData(t, resp)
	require.Len(t, data["items"], 1)
}

// unavailableStore rejects item writes with a renderable AppError.
type unavailableStore struct {
	*storage.Memory
}

func (s *unavailableStore) PutItems(context.Context, string, string, *cart.ItemCollection) error {
	return common.NewAppError(common.CodeUnavailable, "storage unavailable", http.StatusServiceUnavailable, errors.New("connection refused"))
}

func TestStorageFailureRendersAppError(t *testing.T) {
	h := cart.NewHandler(cart.Handler{
		Storage: &unavailableStore{Memory: storage.NewMemory()},
		Policy:  usd,
		Logger:  zerolog.Nop(),
	})
	r := chi.NewRouter()
	r.Route("/api/v1/carts", h.Routes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	resp := do(t, http.MethodPost, srv.URL+"/api/v1/carts/cart-1/items", map[string]any{
		"id": "sku-1", "name": "Widget", "price": "19.99", "quantity": 1,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.Equal(t, common.CodeUnavailable, envelope.Error.Code)
	require.Equal(t, "storage unavailable", envelope.Error.Message)
}
