package locker

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"

	"github.com/boticaudio/sabre/generichttp"
)

type table generichttp.RouteTable

func (t table) RT() generichttp.RouteTable { return generichttp.RouteTable(t) }

func newRouter(l *Locker) http.Handler {
	rt := table{}
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/volume"}] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/volume"}] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
	Inject(rt, l)
	r := chi.NewRouter()
	r.Use(l.Check)
	generichttp.RouteTable(rt).Bind(r)
	return r
}

func do(h http.Handler, method, path, body string) int {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestLockBlocksWrites(t *testing.T) {
	l := New()
	h := newRouter(l)
	if code := do(h, http.MethodPost, "/volume", ""); code != http.StatusOK {
		t.Fatalf("unlocked POST got %d", code)
	}
	if code := do(h, http.MethodPost, "/lock", `{"bool":true}`); code != http.StatusOK {
		t.Fatalf("lock got %d", code)
	}
	if !l.Locked() {
		t.Fatal("locker not locked after POST /lock")
	}
	if code := do(h, http.MethodPost, "/volume", ""); code != http.StatusLocked {
		t.Errorf("locked POST got %d, want 423", code)
	}
	if code := do(h, http.MethodGet, "/volume", ""); code != http.StatusOK {
		t.Errorf("locked GET got %d, want 200", code)
	}
	if code := do(h, http.MethodPost, "/lock", `{"bool":false}`); code != http.StatusOK {
		t.Fatalf("unlock got %d", code)
	}
	if code := do(h, http.MethodPost, "/volume", ""); code != http.StatusOK {
		t.Errorf("unlocked POST got %d", code)
	}
}

func TestLockBadBody(t *testing.T) {
	h := newRouter(New())
	if code := do(h, http.MethodPost, "/lock", "nope"); code != http.StatusBadRequest {
		t.Errorf("got %d, want 400", code)
	}
}

func TestHTTPGet(t *testing.T) {
	l := New()
	l.Lock()
	rec := httptest.NewRecorder()
	l.HTTPGet(rec, httptest.NewRequest(http.MethodGet, "/lock", nil))
	if got := strings.TrimSpace(rec.Body.String()); got != `{"bool":true}` {
		t.Errorf("body %q", got)
	}
}
