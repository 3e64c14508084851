package admission

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const RequestIDHeader = "X-Request-Id"

type KeyFunc func(r *http.Request) string

type Options struct {
	Gate                *application.Gate
	Limits              domain.Limits
	Stats               domain.StatsStore
	KeyFn               KeyFunc
	KeyHeader           string
	TrustXForwardedFor  bool
	AddRateLimitHeaders bool
	Now                 func() time.Time
	Logger              *zap.Logger
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		// fallback: RemoteAddr. Vazio vira missing_identifier no gate.
		addr := strings.TrimSpace(r.RemoteAddr)
		if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
			return host
		}
		return addr
	}
}

// Middleware chama o gate antes do handler. Negações viram JSON:
// 403 para quem já estava banido (com bannedAt/reason), 429 para quem acabou
// de estourar a janela e 400 quando não há identificador.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Gate == nil {
		opts.Gate = &application.Gate{}
	}
	limits := opts.Limits.Normalize()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			reqID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
			if reqID == "" {
				reqID = uuid.NewString()
				r.Header.Set(RequestIDHeader, reqID)
			}
			w.Header().Set(RequestIDHeader, reqID)

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Key", key)
				w.Header().Set("X-RateLimit-Limit", formatInt(limits.MaxRequests))
				w.Header().Set("X-RateLimit-Window", formatInt(int(limits.Window.Milliseconds())))
			}

			now := opts.Now()
			dec := opts.Gate.Decide(domain.Attempt{Key: domain.Key(key), At: now, RequestID: reqID}, limits)
			if opts.Stats != nil {
				err := opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:     domain.Key(key),
					Outcome: dec.Outcome(),
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      now,
				})
				if err != nil {
					opts.Logger.Debug("admission stats record failed", zap.Error(err))
				}
			}
			if !dec.Allowed {
				if opts.AddRateLimitHeaders {
					w.Header().Set("X-RateLimit-Remaining", "0")
				}
				writeDenial(w, dec)
				return
			}
			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Remaining", formatInt(limits.MaxRequests-dec.Count))
			}

			next.ServeHTTP(w, r)
		})
	}
}

type denialBody struct {
	Error    string     `json:"error"`
	BannedAt *time.Time `json:"bannedAt,omitempty"`
	Reason   string     `json:"reason,omitempty"`
}

func denialStatus(reason string) int {
	switch reason {
	case domain.ReasonAlreadyBanned:
		return http.StatusForbidden
	case domain.ReasonRateLimitExceeded:
		return http.StatusTooManyRequests
	case domain.ReasonMissingIdentifier:
		return http.StatusBadRequest
	default:
		return http.StatusForbidden
	}
}

func writeDenial(w http.ResponseWriter, dec domain.Decision) {
	body := denialBody{Error: dec.Reason}
	// só quem já estava banido recebe a data e o motivo originais
	if dec.Reason == domain.ReasonAlreadyBanned && dec.Ban != nil {
		at := dec.Ban.BannedAt
		body.BannedAt = &at
		body.Reason = dec.Ban.Reason
	}
	writeJSON(w, denialStatus(dec.Reason), body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
