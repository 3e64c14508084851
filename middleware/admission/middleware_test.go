package admission

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"
)

var t0 = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type testGateway struct {
	handler http.Handler
	bans    *infra.BanStore
	audit   *infra.MemoryAuditLog
	stats   *infra.MemoryStatsStore
	clock   *fakeClock
	calls   *int
}

func newTestGateway(limits domain.Limits, mutate func(*Options)) testGateway {
	clock := &fakeClock{now: t0}
	bans := infra.NewBanStore(nil, infra.WithBanClock(clock.Now))
	audit := infra.NewMemoryAuditLog()
	stats := infra.NewMemoryStatsStore()
	gate := &application.Gate{Tracker: infra.NewWindowTracker(), Bans: bans, Audit: audit}

	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})

	opts := Options{Gate: gate, Limits: limits, Stats: stats, Now: clock.Now}
	if mutate != nil {
		mutate(&opts)
	}
	return testGateway{
		handler: Middleware(opts)(next),
		bans:    bans,
		audit:   audit,
		stats:   stats,
		clock:   clock,
		calls:   &calls,
	}
}

func (g testGateway) do(remote string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, "http://example/showTela", nil)
	r.RemoteAddr = remote
	w := httptest.NewRecorder()
	g.handler.ServeHTTP(w, r)
	return w
}

func decodeDenial(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("expected JSON body, got %q (%v)", w.Body.String(), err)
	}
	return body
}

func TestMiddleware_AllowsThenBansSameKey(t *testing.T) {
	g := newTestGateway(domain.Limits{MaxRequests: 3, Window: time.Second}, nil)

	// 3 passam dentro de 1s
	for i := 0; i < 3; i++ {
		w := g.do("10.0.0.1:1234")
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, w.Code)
		}
		g.clock.Advance(100 * time.Millisecond)
	}

	// a 4ª estoura: 429 e banimento
	w4 := g.do("10.0.0.1:1234")
	if w4.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w4.Code)
	}
	body := decodeDenial(t, w4)
	if body["error"] != domain.ReasonRateLimitExceeded {
		t.Fatalf("expected error %q, got %v", domain.ReasonRateLimitExceeded, body["error"])
	}
	if _, ok := body["bannedAt"]; ok {
		t.Fatalf("expected no bannedAt on 429, got %v", body["bannedAt"])
	}

	// a 5ª, muito depois da janela, continua negada (403)
	g.clock.Advance(time.Hour)
	w5 := g.do("10.0.0.1:1234")
	if w5.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w5.Code)
	}
	body = decodeDenial(t, w5)
	if body["error"] != domain.ReasonAlreadyBanned {
		t.Fatalf("expected error %q, got %v", domain.ReasonAlreadyBanned, body["error"])
	}
	if body["reason"] != "exceeded_3_per_1000ms" {
		t.Fatalf("expected reason exceeded_3_per_1000ms, got %v", body["reason"])
	}
	if body["bannedAt"] != "2026-10-18T12:00:00.3Z" {
		t.Fatalf("expected bannedAt 2026-10-18T12:00:00.3Z, got %v", body["bannedAt"])
	}

	if *g.calls != 3 {
		t.Fatalf("expected next handler to be called 3 times, got %d", *g.calls)
	}

	// outro IP segue livre
	if w := g.do("10.0.0.2:1234"); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for other client, got %d", w.Code)
	}
}

func TestMiddleware_RecordsStatsAndAudit(t *testing.T) {
	g := newTestGateway(domain.Limits{MaxRequests: 1, Window: time.Second}, nil)

	g.do("10.0.0.1:1")
	g.do("10.0.0.1:1")
	g.do("10.0.0.1:1")

	got := g.stats.Total()
	want := infra.Counters{Allowed: 1, Limited: 1, Blocked: 1}
	if got != want {
		t.Fatalf("expected stats %+v, got %+v", want, got)
	}
	if c := g.stats.ByRoute()["GET /showTela"]; c != want {
		t.Fatalf("expected route stats %+v, got %+v", want, c)
	}

	var kinds []domain.AuditKind
	for _, ev := range g.audit.Events() {
		kinds = append(kinds, ev.Kind)
	}
	wantKinds := []domain.AuditKind{domain.AuditRequest, domain.AuditRequest, domain.AuditBan, domain.AuditBlockedRequest}
	if len(kinds) != len(wantKinds) {
		t.Fatalf("expected audit kinds %v, got %v", wantKinds, kinds)
	}
	for i := range wantKinds {
		if kinds[i] != wantKinds[i] {
			t.Fatalf("expected audit kinds %v, got %v", wantKinds, kinds)
		}
	}
}

func TestMiddleware_MissingIdentifierIsBadRequest(t *testing.T) {
	g := newTestGateway(domain.Limits{}, nil)

	w := g.do("")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if body := decodeDenial(t, w); body["error"] != domain.ReasonMissingIdentifier {
		t.Fatalf("expected error %q, got %v", domain.ReasonMissingIdentifier, body["error"])
	}
	if *g.calls != 0 {
		t.Fatalf("expected next handler not to be called, got %d", *g.calls)
	}
	if n := len(g.audit.Events()); n != 0 {
		t.Fatalf("expected no audit events, got %d", n)
	}
}

func TestMiddleware_RateLimitHeaders(t *testing.T) {
	g := newTestGateway(domain.Limits{MaxRequests: 2, Window: 500 * time.Millisecond}, func(o *Options) {
		o.AddRateLimitHeaders = true
	})

	w1 := g.do("10.0.0.1:1234")
	if got := w1.Header().Get("X-RateLimit-Key"); got != "10.0.0.1" {
		t.Fatalf("expected X-RateLimit-Key=10.0.0.1, got %q", got)
	}
	if got := w1.Header().Get("X-RateLimit-Limit"); got != "2" {
		t.Fatalf("expected X-RateLimit-Limit=2, got %q", got)
	}
	if got := w1.Header().Get("X-RateLimit-Window"); got != "500" {
		t.Fatalf("expected X-RateLimit-Window=500, got %q", got)
	}
	if got := w1.Header().Get("X-RateLimit-Remaining"); got != "1" {
		t.Fatalf("expected X-RateLimit-Remaining=1, got %q", got)
	}

	g.do("10.0.0.1:1234")
	w3 := g.do("10.0.0.1:1234")
	if w3.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w3.Code)
	}
	if got := w3.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("expected X-RateLimit-Remaining=0, got %q", got)
	}
	if got := w3.Header().Get("Retry-After"); got != "" {
		t.Fatalf("expected no Retry-After on permanent ban, got %q", got)
	}
}

func TestMiddleware_RequestID(t *testing.T) {
	g := newTestGateway(domain.Limits{}, nil)

	// gerado quando ausente
	w1 := g.do("10.0.0.1:1234")
	if got := w1.Header().Get(RequestIDHeader); got == "" {
		t.Fatalf("expected %s header to be set", RequestIDHeader)
	}

	// propagado quando presente
	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	r.Header.Set(RequestIDHeader, "req-42")
	w2 := httptest.NewRecorder()
	g.handler.ServeHTTP(w2, r)
	if got := w2.Header().Get(RequestIDHeader); got != "req-42" {
		t.Fatalf("expected request id req-42, got %q", got)
	}

	events := g.audit.Events()
	if last := events[len(events)-1]; last.RequestID != "req-42" {
		t.Fatalf("expected audit event with request id req-42, got %q", last.RequestID)
	}
}

func TestMiddleware_KeyByHeader(t *testing.T) {
	g := newTestGateway(domain.Limits{MaxRequests: 1, Window: time.Minute}, func(o *Options) {
		o.KeyHeader = "X-Api-Key"
	})

	// duas chaves diferentes => ambas passam (cada chave tem sua própria janela)
	for _, k := range []string{"k1", "k2"} {
		r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
		r.Header.Set("X-Api-Key", k)
		r.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		g.handler.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200 for key %s, got %d", k, w.Code)
		}
	}
}

func TestMiddleware_UnbanRestoresAccess(t *testing.T) {
	g := newTestGateway(domain.Limits{MaxRequests: 1, Window: time.Minute}, nil)

	g.do("10.0.0.1:1234")
	if w := g.do("10.0.0.1:1234"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if !g.bans.Unban("10.0.0.1") {
		t.Fatalf("expected unban to remove 10.0.0.1")
	}
	// janela recomeça do zero após o banimento
	if w := g.do("10.0.0.1:1234"); w.Code != http.StatusOK {
		t.Fatalf("expected 200 after unban, got %d", w.Code)
	}
}
