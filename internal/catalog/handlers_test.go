package catalog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-api/internal/catalog"
	"github.com/noah-isme/storefront-api/internal/common"
	"github.com/noah-isme/storefront-api/internal/obs"
)

var testNow = time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)

type productsResponse struct {
	Data       []catalog.Product `json:"data"`
	Pagination common.Pagination `json:"pagination"`
}

type productResponse struct {
	Data catalog.Product `json:"data"`
}

func newService(t *testing.T, store *fakeStore) (*catalog.Service, *miniredis.Miniredis) {
	t.Helper()
	obs.MustRegisterDomainMetrics("storefront", prometheus.NewRegistry())
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &catalog.Service{
		Store:        store,
		Cache:        catalog.NewCache(client, time.Minute),
		DefaultLimit: 2,
		MaxLimit:     3,
		Now:          func() time.Time { return testNow },
	}, mr
}

func newRouter(svc *catalog.Service) http.Handler {
	h := &catalog.Handler{Svc: svc}
	r := chi.NewRouter()
	r.Get("/products", h.Products)
	r.Get("/products/{id}", h.Product)
	r.Post("/products", h.Create)
	r.Put("/products/{id}", h.Update)
	r.Delete("/products/{id}", h.Delete)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestProductsListPaginatesAndCaches(t *testing.T) {
	store := newFakeStore()
	store.seed("alpha", "100000", true)
	store.seed("beta", "200000", true)
	newest := store.seed("gamma", "300000", true)
	store.seed("hidden", "50000", false)
	svc, mr := newService(t, store)
	router := newRouter(svc)

	rec := do(t, router, http.MethodGet, "/products", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "3", rec.Header().Get("X-Total-Count"))
	var body productsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	require.Equal(t, newest.ID, body.Data[0].ID)
	require.True(t, body.Data[0].Price.Equal(decimal.RequireFromString("300000")))
	require.Len(t, body.Data[0].Variants, 1)
	require.Equal(t, 2, body.Pagination.TotalPages)

	hitsBefore := testutil.ToFloat64(obs.CatalogCacheTotal.WithLabelValues("hit"))
	rec = do(t, router, http.MethodGet, "/products", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, store.calls["list"])
	require.Equal(t, hitsBefore+1, testutil.ToFloat64(obs.CatalogCacheTotal.WithLabelValues("hit")))
	require.True(t, mr.Exists("catalog:products:p1:l2"))

	rec = do(t, router, http.MethodGet, "/products?page=1&limit=50", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 3)
	require.Equal(t, 3, body.Pagination.PerPage)
}

func TestProductDetail(t *testing.T) {
	store := newFakeStore()
	p := store.seed("alpha", "100000", true)
	hidden := store.seed("hidden", "50000", false)
	svc, _ := newService(t, store)
	router := newRouter(svc)

	rec := do(t, router, http.MethodGet, "/products/"+p.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body productResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "alpha", body.Data.Name)
	require.Equal(t, "M", *body.Data.Variants[0].Size)

	do(t, router, http.MethodGet, "/products/"+p.ID.String(), "")
	require.Equal(t, 1, store.calls["get"])

	require.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/products/"+hidden.ID.String(), "").Code)
	require.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/products/"+uuid.NewString(), "").Code)
	require.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/products/nope", "").Code)
}

func TestCreateProduct(t *testing.T) {
	store := newFakeStore()
	svc, mr := newService(t, store)
	router := newRouter(svc)
	do(t, router, http.MethodGet, "/products", "")
	require.True(t, mr.Exists("catalog:products:p1:l2"))

	payload := `{"name":"<b>Linen Shirt</b>","description":"<p>Soft</p><script>x()</script>","sku":"LS-01","price":"349000.004",
		"variants":[{"sku":"LS-01-M","size":"M","additional_price":"0","stock":3},{"sku":"LS-01-L","size":"L","additional_price":"20000","stock":1}]}`
	rec := do(t, router, http.MethodPost, "/products", payload)
	require.Equal(t, http.StatusCreated, rec.Code)
	var body productResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Linen Shirt", body.Data.Name)
	require.Equal(t, "<p>Soft</p>", body.Data.Description)
	require.Equal(t, "349000", body.Data.Price.String())
	require.Len(t, body.Data.Variants, 2)
	require.False(t, mr.Exists("catalog:products:p1:l2"))

	rec = do(t, router, http.MethodPost, "/products", `{"name":"Other","sku":"LS-01","price":"1"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "PRODUCT_SKU_EXISTS")

	rec = do(t, router, http.MethodPost, "/products", `{"name":"Other","sku":"OT-01","price":"-1"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/products", `{"name":"Other","sku":"OT-02","price":"10","variants":[{"sku":"LS-01-M","stock":1}]}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	for _, p := range store.products {
		require.NotEqual(t, "OT-02", p.Sku)
	}
}

func TestUpdatePriceClosesPreviousRow(t *testing.T) {
	store := newFakeStore()
	p := store.seed("alpha", "100000", true)
	svc, mr := newService(t, store)
	router := newRouter(svc)
	do(t, router, http.MethodGet, "/products/"+p.ID.String(), "")
	require.True(t, mr.Exists("catalog:product:"+p.ID.String()))

	rec := do(t, router, http.MethodPut, "/products/"+p.ID.String(), `{"price":"120000","name":"Alpha v2"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var body productResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Alpha v2", body.Data.Name)
	require.Equal(t, "120000", body.Data.Price.String())
	require.Len(t, store.prices, 2)
	require.Equal(t, 1, store.openPrices(p.ID))
	require.True(t, store.prices[0].EndDate.Valid)
	require.Equal(t, testNow, store.prices[0].EndDate.Time)
	require.False(t, mr.Exists("catalog:product:"+p.ID.String()))

	rec = do(t, router, http.MethodPut, "/products/"+p.ID.String(), `{"price":"120000"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.prices, 2)

	require.Equal(t, http.StatusNotFound, do(t, router, http.MethodPut, "/products/"+uuid.NewString(), `{"name":"x"}`).Code)
}

func TestDeactivateProduct(t *testing.T) {
	store := newFakeStore()
	p := store.seed("alpha", "100000", true)
	svc, _ := newService(t, store)
	router := newRouter(svc)
	do(t, router, http.MethodGet, "/products/"+p.ID.String(), "")

	rec := do(t, router, http.MethodDelete, "/products/"+p.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/products/"+p.ID.String(), "").Code)
	require.Equal(t, http.StatusNotFound, do(t, router, http.MethodDelete, "/products/"+p.ID.String(), "").Code)
}

func TestCacheDisabledWithoutTTL(t *testing.T) {
	require.Nil(t, catalog.NewCache(nil, time.Minute))
	var c *catalog.Cache
	ok, err := c.GetJSON(context.Background(), "k", &struct{}{})
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, c.DeletePrefix(context.Background(), "catalog:"))
}

func TestCacheDeletePrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	c := catalog.NewCache(client, time.Minute)
	ctx := context.Background()
	for i := 0; i < 250; i++ {
		require.NoError(t, c.SetJSON(ctx, "catalog:products:"+uuid.NewString(), i))
	}
	require.NoError(t, c.SetJSON(ctx, "catalog:product:keep", 1))
	require.NoError(t, c.DeletePrefix(ctx, "catalog:products:"))
	require.Equal(t, []string{"catalog:product:keep"}, mr.Keys())
}
