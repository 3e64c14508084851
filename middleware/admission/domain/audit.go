package domain

import "time"

type AuditKind string

const (
	AuditRequest        AuditKind = "REQUEST"
	AuditBan            AuditKind = "BAN"
	AuditUnban          AuditKind = "UNBAN"
	AuditBlockedRequest AuditKind = "BLOCKED_REQUEST"
)

// AuditEvent é uma linha do log de auditoria.
//
// Campos específicos por tipo:
//   - REQUEST: Count (e RequestID quando houver)
//   - BAN: Reason, Actor
//   - BLOCKED_REQUEST: Reason do banimento existente
//   - UNBAN: Actor
type AuditEvent struct {
	Kind       AuditKind
	At         time.Time
	Identifier Key
	Count      int
	Reason     string
	Actor      string
	RequestID  string
}

// AuditSink recebe eventos de auditoria.
//
// Append é best-effort: falhas de escrita são tratadas pela implementação
// e nunca chegam a quem chamou.
type AuditSink interface {
	Append(ev AuditEvent)
}
