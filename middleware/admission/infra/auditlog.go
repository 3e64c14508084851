package infra

import (
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"admission-gateway/middleware/admission/domain"

	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"
)

const auditTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// AuditLog grava uma linha por evento num io.Writer, só acrescentando.
//
// Falha de escrita não é propagada: vira um warning no logger operacional.
type AuditLog struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	logger *zap.Logger
}

type AuditOption func(*AuditLog)

func WithAuditLogger(l *zap.Logger) AuditOption {
	return func(a *AuditLog) { a.logger = l }
}

func NewAuditLog(w io.Writer, opts ...AuditOption) *AuditLog {
	a := &AuditLog{w: w, logger: zap.NewNop()}
	if c, ok := w.(io.Closer); ok {
		a.closer = c
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewFileAuditLog abre (ou cria) o arquivo de auditoria com rotação por tamanho.
// Arquivos rotacionados nunca são apagados aqui (MaxBackups/MaxAge = 0):
// retenção é responsabilidade externa.
func NewFileAuditLog(path string, maxSizeMB int, opts ...AuditOption) *AuditLog {
	return NewAuditLog(&lumberjack.Logger{
		Filename:  path,
		MaxSize:   maxSizeMB,
		LocalTime: false,
	}, opts...)
}

// Append implementa domain.AuditSink.
func (a *AuditLog) Append(ev domain.AuditEvent) {
	line := FormatAuditEvent(ev)

	a.mu.Lock()
	_, err := io.WriteString(a.w, line)
	a.mu.Unlock()

	if err != nil {
		a.logger.Warn("audit log write failed",
			zap.String("kind", string(ev.Kind)),
			zap.String("identifier", string(ev.Identifier)),
			zap.Error(err),
		)
	}
}

func (a *AuditLog) Close() error {
	if a.closer == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closer.Close()
}

// FormatAuditEvent monta a linha "KIND timestamp identificador chave=valor...".
//
//	REQUEST 2026-10-18T12:00:00.100Z 10.0.0.1 count=3 req=5f0c...
//	BAN 2026-10-18T12:00:00.300Z 10.0.0.1 reason=exceeded_3_per_1000ms by=admission_gate
func FormatAuditEvent(ev domain.AuditEvent) string {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	var b strings.Builder
	b.WriteString(string(ev.Kind))
	b.WriteByte(' ')
	b.WriteString(at.UTC().Format(auditTimeLayout))
	b.WriteByte(' ')
	b.WriteString(auditToken(string(ev.Identifier)))

	switch ev.Kind {
	case domain.AuditRequest:
		writePair(&b, "count", strconv.Itoa(ev.Count))
	case domain.AuditBan:
		writePair(&b, "reason", ev.Reason)
		writePair(&b, "by", ev.Actor)
	case domain.AuditBlockedRequest:
		writePair(&b, "reason", ev.Reason)
	case domain.AuditUnban:
		writePair(&b, "by", ev.Actor)
	}
	if ev.RequestID != "" {
		writePair(&b, "req", ev.RequestID)
	}
	b.WriteByte('\n')
	return b.String()
}

func writePair(b *strings.Builder, k, v string) {
	if v == "" {
		return
	}
	b.WriteByte(' ')
	b.WriteString(k)
	b.WriteByte('=')
	b.WriteString(auditToken(v))
}

// auditToken mantém um token por campo: vazio vira "-" e valores com espaço,
// aspas, '=' ou caracteres de controle são citados no formato Go.
func auditToken(s string) string {
	if s == "" {
		return "-"
	}
	if strings.ContainsFunc(s, func(r rune) bool {
		return r <= ' ' || r == '"' || r == '=' || r == 0x7f
	}) {
		return strconv.Quote(s)
	}
	return s
}

// MemoryAuditLog guarda os eventos em memória. Útil para testes e desenvolvimento.
type MemoryAuditLog struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func NewMemoryAuditLog() *MemoryAuditLog {
	return &MemoryAuditLog{}
}

func (m *MemoryAuditLog) Append(ev domain.AuditEvent) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
}

func (m *MemoryAuditLog) Events() []domain.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AuditEvent, len(m.events))
	copy(out, m.events)
	return out
}
