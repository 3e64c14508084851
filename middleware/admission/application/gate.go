package application

import (
	"sync"

	"admission-gateway/middleware/admission/domain"

	"github.com/cespare/xxhash/v2"
)

const gateLockStripes = 256

// Gate é a função de decisão por requisição: consulta banimentos, registra na
// janela deslizante, audita e bane quando o limite é ultrapassado.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// O valor zero é utilizável, mas Gate não deve ser copiado após o primeiro uso.
type Gate struct {
	Tracker domain.WindowTracker
	Bans    domain.BanStore
	Audit   domain.AuditSink

	// locks serializa decisões da mesma chave; chaves diferentes caem
	// (quase sempre) em listras diferentes e seguem em paralelo.
	locks [gateLockStripes]sync.Mutex
}

func (g *Gate) Decide(a domain.Attempt, limits domain.Limits) domain.Decision {
	if a.Key == "" {
		return domain.Decision{Allowed: false, Reason: domain.ReasonMissingIdentifier}
	}
	if g.Tracker == nil || g.Bans == nil {
		return domain.Decision{Allowed: true}
	}
	limits = limits.Normalize()

	mu := g.lockFor(a.Key)
	mu.Lock()
	defer mu.Unlock()

	// banido: nega em O(1) sem tocar na janela
	if rec, ok := g.Bans.IsBanned(a.Key); ok {
		g.append(domain.AuditEvent{
			Kind:       domain.AuditBlockedRequest,
			At:         a.At,
			Identifier: a.Key,
			Reason:     rec.Reason,
			RequestID:  a.RequestID,
		})
		return domain.Decision{Allowed: false, Reason: domain.ReasonAlreadyBanned, Ban: &rec}
	}

	count := g.Tracker.Record(a.Key, a.At, limits.Window)
	g.append(domain.AuditEvent{
		Kind:       domain.AuditRequest,
		At:         a.At,
		Identifier: a.Key,
		Count:      count,
		RequestID:  a.RequestID,
	})

	// exatamente MaxRequests passam; a (MaxRequests+1)-ésima bane
	if count <= limits.MaxRequests {
		return domain.Decision{Allowed: true, Count: count}
	}

	rec, created := g.Bans.Ban(a.Key, limits.BanReason(), domain.ActorGate)
	// após um unban a chave recomeça com janela nova
	g.Tracker.Forget(a.Key)
	if created {
		g.append(domain.AuditEvent{
			Kind:       domain.AuditBan,
			At:         a.At,
			Identifier: a.Key,
			Reason:     rec.Reason,
			Actor:      rec.BannedBy,
		})
	}
	return domain.Decision{Allowed: false, Reason: domain.ReasonRateLimitExceeded, Count: count, Ban: &rec}
}

func (g *Gate) lockFor(key domain.Key) *sync.Mutex {
	return &g.locks[xxhash.Sum64String(string(key))%gateLockStripes]
}

func (g *Gate) append(ev domain.AuditEvent) {
	if g.Audit == nil {
		return
	}
	g.Audit.Append(ev)
}
