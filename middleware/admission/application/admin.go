package application

import (
	"crypto/subtle"
	"time"

	"admission-gateway/middleware/admission/domain"
)

type AdminResult string

const (
	AdminOK             AdminResult = "ok"
	AdminUnbanned       AdminResult = "unbanned"
	AdminNotFound       AdminResult = "not_found"
	AdminUnauthorized   AdminResult = "unauthorized"
	AdminMisconfigured  AdminResult = "misconfigured"
	AdminInvalidRequest AdminResult = "invalid_request"
)

// AdminService é o caminho privilegiado para desfazer banimentos.
//
// Sem Secret configurado toda operação responde AdminMisconfigured, nunca
// AdminUnauthorized.
type AdminService struct {
	Secret string
	Bans   domain.BanStore
	Audit  domain.AuditSink
	Now    func() time.Time
}

func (s AdminService) Unban(providedSecret string, key domain.Key) AdminResult {
	if res := s.authorize(providedSecret); res != AdminOK {
		return res
	}
	if key == "" {
		return AdminInvalidRequest
	}
	if !s.Bans.Unban(key) {
		return AdminNotFound
	}
	if s.Audit != nil {
		s.Audit.Append(domain.AuditEvent{
			Kind:       domain.AuditUnban,
			At:         s.now(),
			Identifier: key,
			Actor:      domain.ActorAdmin,
		})
	}
	return AdminUnbanned
}

// List devolve os banimentos ativos com as mesmas regras de autorização de Unban.
func (s AdminService) List(providedSecret string) ([]domain.BanRecord, AdminResult) {
	if res := s.authorize(providedSecret); res != AdminOK {
		return nil, res
	}
	return s.Bans.List(), AdminOK
}

func (s AdminService) authorize(provided string) AdminResult {
	if s.Secret == "" || s.Bans == nil {
		return AdminMisconfigured
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(s.Secret)) != 1 {
		return AdminUnauthorized
	}
	return AdminOK
}

func (s AdminService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
