package tenant

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type seen struct {
	slug   string
	source Source
	body   string
}

func testRouter(t *testing.T, opts Options, out *seen) http.Handler {
	t.Helper()
	res, _ := newTestResolver(opts)
	mw := NewMiddleware(res, "X-City-Slug", zap.NewNop())

	capture := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rs, ok := FromContext(r.Context()); ok {
			out.slug, out.source = rs.City.Slug, rs.Source
		}
		b, _ := io.ReadAll(r.Body)
		out.body = string(b)
		w.WriteHeader(http.StatusNoContent)
	})

	r := chi.NewRouter()
	r.Route("/{region}/{city}", func(r chi.Router) {
		r.Use(mw.Handler, RequireExplicit, EnforceStatus)
		r.Get("/weather", capture)
		r.Post("/reports", capture)
	})
	r.Group(func(r chi.Router) {
		r.Use(mw.Handler, RequireTenant)
		r.Get("/api/tenant", HandleCurrent)
		r.Post("/api/register", capture)
	})
	return r
}

func do(h http.Handler, method, target, body string, hdr map[string]string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var b struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&b); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if b.Success {
		t.Fatal("error envelope has success=true")
	}
	return b.Error
}

func TestMiddleware_CanonicalPath(t *testing.T) {
	var got seen
	h := testRouter(t, Options{DefaultCitySlug: "santos"}, &got)

	rec := do(h, http.MethodGet, "/sp/campinas/weather", "", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("code = %d", rec.Code)
	}
	if got.slug != "campinas" || got.source != SourcePath {
		t.Fatalf("bound %s/%s, want campinas/path", got.slug, got.source)
	}
}

func TestMiddleware_CanonicalRejectsFallback(t *testing.T) {
	var got seen
	h := testRouter(t, Options{DefaultCitySlug: "santos"}, &got)

	rec := do(h, http.MethodGet, "/sp/atlantis/weather", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400", rec.Code)
	}
	if code := errorCode(t, rec); code != "TENANT_REQUIRED" {
		t.Fatalf("error = %q", code)
	}
	if got.slug != "" {
		t.Fatal("handler ran for unknown canonical city")
	}
}

func TestMiddleware_LegacyFallback(t *testing.T) {
	h := testRouter(t, Options{DefaultCitySlug: "santos"}, &seen{})

	rec := do(h, http.MethodGet, "/api/tenant", "", map[string]string{"X-City-Slug": "campinas"})
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var body struct {
		City struct {
			Slug string `json:"slug"`
		} `json:"city"`
		Source string `json:"source"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body.City.Slug != "santos" || body.Source != "fallback" {
		t.Fatalf("got %s/%s, want santos/fallback with header override off", body.City.Slug, body.Source)
	}
}

func TestMiddleware_StrictLegacy(t *testing.T) {
	h := testRouter(t, Options{DefaultCitySlug: "santos", Strict: true}, &seen{})

	rec := do(h, http.MethodGet, "/api/tenant", "", nil)
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "TENANT_REQUIRED" {
		t.Fatalf("strict legacy request: code = %d", rec.Code)
	}
}

func TestMiddleware_PayloadPeekKeepsBody(t *testing.T) {
	var got seen
	h := testRouter(t, Options{Strict: true}, &got)

	body := `{"city_slug":"campinas","email":"a@b.c"}`
	rec := do(h, http.MethodPost, "/api/register", body,
		map[string]string{"Content-Type": "application/json; charset=utf-8"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("code = %d", rec.Code)
	}
	if got.slug != "campinas" || got.source != SourcePayload {
		t.Fatalf("bound %s/%s, want campinas/payload", got.slug, got.source)
	}
	if got.body != body {
		t.Fatalf("body = %q, want original", got.body)
	}
}

func TestEnforceStatus(t *testing.T) {
	var got seen
	h := testRouter(t, Options{}, &got)

	rec := do(h, http.MethodGet, "/sp/ubatuba/weather", "", nil)
	if rec.Code != http.StatusNotFound || errorCode(t, rec) != "TENANT_NOT_FOUND" {
		t.Fatalf("draft city: code = %d", rec.Code)
	}

	rec = do(h, http.MethodGet, "/rj/paraty/weather", "", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("paused city read: code = %d", rec.Code)
	}

	rec = do(h, http.MethodPost, "/rj/paraty/reports", `{}`, map[string]string{"Content-Type": "application/json"})
	if rec.Code != http.StatusLocked || errorCode(t, rec) != "TENANT_READ_ONLY" {
		t.Fatalf("paused city write: code = %d", rec.Code)
	}
}

func TestMiddleware_LookupFailure(t *testing.T) {
	dir := newFakeDir()
	dir.err = io.ErrUnexpectedEOF
	res := NewResolver(dir, nil, Options{}, nil, zap.NewNop())
	mw := NewMiddleware(res, "X-City-Slug", zap.NewNop())

	r := chi.NewRouter()
	r.With(mw.Handler, RequireExplicit).Get("/{region}/{city}/weather", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	rec := do(r, http.MethodGet, "/sp/santos/weather", "", nil)
	if rec.Code != http.StatusServiceUnavailable || errorCode(t, rec) != "TENANT_LOOKUP_FAILED" {
		t.Fatalf("code = %d, want 503", rec.Code)
	}
}

func TestMiddleware_SlotClearedAfterRequest(t *testing.T) {
	res, _ := newTestResolver(Options{DefaultCitySlug: "santos"})
	mw := NewMiddleware(res, "X-City-Slug", zap.NewNop())

	var kept *Slot
	h := mw.Handler(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		kept = SlotFrom(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if kept == nil {
		t.Fatal("no slot on request context")
	}
	if kept.IsSet() {
		t.Fatal("slot still bound after the request finished")
	}
}
