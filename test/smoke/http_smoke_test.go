package smoke

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	chi "github.com/go-chi/chi/v5"

	"github.com/aiorreal/quota-service/internal/api"
	"github.com/aiorreal/quota-service/internal/plan"
	"github.com/aiorreal/quota-service/internal/quota"
	"github.com/aiorreal/quota-service/internal/store"
)

func TestHealthAndQuotaSmoke(t *testing.T) {
	st := store.NewMemoryStore()
	engine := quota.New(st, plan.Default())
	h := api.NewHandler(engine, nil, nil, nil, nil, nil, "", "dev", time.Now().Format(time.RFC3339), "git")
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/health", nil))
	if rec.Code != 200 {
		t.Fatalf("/v1/health %d", rec.Code)
	}

	rec2 := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/quota/ensure", strings.NewReader(`{"userId":"smoke-user"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(rec2, req)
	if rec2.Code != 200 {
		t.Fatalf("/v1/quota/ensure %d: %s", rec2.Code, rec2.Body.String())
	}
}
