package admission

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	AdminSecretHeader = "X-Admin-Secret"
	maxAdminBody      = 64 << 10
)

type AdminOptions struct {
	Service application.AdminService
	// RPS/Burst limitam tentativas no endpoint (token bucket global),
	// para dificultar adivinhação do segredo. RPS <= 0 desliga o limite.
	RPS    float64
	Burst  int
	Logger *zap.Logger
}

type unbanRequest struct {
	Identifier string `json:"identifier"`
	IP         string `json:"ip"`
	Secret     string `json:"secret"`
}

type adminResponse struct {
	Status     string       `json:"status"`
	Identifier string       `json:"identifier,omitempty"`
	Error      string       `json:"error,omitempty"`
	Bans       []banSummary `json:"bans,omitempty"`
}

type banSummary struct {
	Identifier string    `json:"identifier"`
	BannedAt   time.Time `json:"bannedAt"`
	Reason     string    `json:"reason"`
	By         string    `json:"by"`
}

// AdminHandler expõe:
//
//	POST /admin/unban  {"identifier": "...", "secret": "..."}  (segredo também via X-Admin-Secret)
//	GET  /admin/bans                                          (segredo via X-Admin-Secret)
func AdminHandler(opts AdminOptions) http.Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	var lim *rate.Limiter
	if opts.RPS > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	svc := opts.Service

	mux := http.NewServeMux()
	mux.HandleFunc("POST /admin/unban", func(w http.ResponseWriter, r *http.Request) {
		var req unbanRequest
		if err := decodeAdminBody(w, r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, adminResponse{Status: string(application.AdminInvalidRequest), Error: err.Error()})
			return
		}
		secret := r.Header.Get(AdminSecretHeader)
		if secret == "" {
			secret = req.Secret
		}
		id := strings.TrimSpace(req.Identifier)
		if id == "" {
			id = strings.TrimSpace(req.IP)
		}

		res := svc.Unban(secret, domain.Key(id))
		opts.Logger.Info("admin unban",
			zap.String("identifier", id),
			zap.String("result", string(res)),
			zap.String("remote", r.RemoteAddr),
		)
		writeJSON(w, adminStatus(res), adminResponse{Status: string(res), Identifier: id, Error: adminError(res)})
	})
	mux.HandleFunc("GET /admin/bans", func(w http.ResponseWriter, r *http.Request) {
		list, res := svc.List(r.Header.Get(AdminSecretHeader))
		if res != application.AdminOK {
			writeJSON(w, adminStatus(res), adminResponse{Status: string(res), Error: adminError(res)})
			return
		}
		out := make([]banSummary, 0, len(list))
		for _, rec := range list {
			out = append(out, banSummary{Identifier: string(rec.Identifier), BannedAt: rec.BannedAt, Reason: rec.Reason, By: rec.BannedBy})
		}
		writeJSON(w, http.StatusOK, adminResponse{Status: string(res), Bans: out})
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if lim != nil && !lim.Allow() {
			writeJSON(w, http.StatusTooManyRequests, adminResponse{Status: "throttled", Error: "too many admin requests"})
			return
		}
		mux.ServeHTTP(w, r)
	})
}

func decodeAdminBody(w http.ResponseWriter, r *http.Request, dst *unbanRequest) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxAdminBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return errors.New("invalid JSON body")
	}
	return nil
}

func adminStatus(res application.AdminResult) int {
	switch res {
	case application.AdminOK, application.AdminUnbanned:
		return http.StatusOK
	case application.AdminNotFound:
		return http.StatusNotFound
	case application.AdminUnauthorized:
		return http.StatusUnauthorized
	case application.AdminMisconfigured:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func adminError(res application.AdminResult) string {
	switch res {
	case application.AdminNotFound:
		return "identifier is not banned"
	case application.AdminUnauthorized:
		return "invalid admin secret"
	case application.AdminMisconfigured:
		return "admin secret not configured"
	case application.AdminInvalidRequest:
		return "identifier is required"
	default:
		return ""
	}
}
