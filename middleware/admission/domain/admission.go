package domain

// Camada de domínio da admissão.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"fmt"
	"time"
)

type Key string

const (
	DefaultMaxRequests     = 25
	DefaultWindow          = 10 * time.Second
	DefaultCleanupInterval = 60 * time.Second
)

// Motivos de negação devolvidos na Decision (e usados como outcome nas estatísticas).
const (
	OutcomeAllowed          = "allowed"
	ReasonAlreadyBanned     = "already_banned"
	ReasonRateLimitExceeded = "rate_limit_exceeded"
	ReasonMissingIdentifier = "missing_identifier"
)

// Limits são os parâmetros da janela deslizante.
type Limits struct {
	MaxRequests int
	Window      time.Duration
}

// Normalize substitui valores não positivos pelos padrões.
func (l Limits) Normalize() Limits {
	if l.MaxRequests <= 0 {
		l.MaxRequests = DefaultMaxRequests
	}
	if l.Window <= 0 {
		l.Window = DefaultWindow
	}
	return l
}

// BanReason monta o motivo gravado no BanRecord, ex.: "exceeded_25_per_10000ms".
func (l Limits) BanReason() string {
	return fmt.Sprintf("exceeded_%d_per_%dms", l.MaxRequests, l.Window.Milliseconds())
}

// Attempt é uma requisição a ser avaliada pelo gate.
type Attempt struct {
	Key       Key
	At        time.Time
	RequestID string
}

type Decision struct {
	Allowed bool
	// Reason é vazio quando Allowed; caso contrário um dos Reason* acima.
	Reason string
	// Count é o número de requisições na janela (inclui a atual).
	// Zero quando a janela não foi consultada (ex.: já banido).
	Count int
	// Ban é preenchido nas negações por banimento.
	Ban *BanRecord
}

func (d Decision) Outcome() string {
	if d.Allowed {
		return OutcomeAllowed
	}
	return d.Reason
}

// WindowTracker conta requisições por chave dentro de uma janela deslizante.
//
// Record deve ser seguro para chamadas concorrentes e serializar chamadas
// para a mesma chave.
type WindowTracker interface {
	Record(key Key, now time.Time, window time.Duration) int
	Forget(key Key)
}
