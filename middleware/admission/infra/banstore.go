package infra

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"admission-gateway/middleware/admission/domain"

	"go.uber.org/zap"
)

// BanStore guarda os banimentos ativos em memória e grava o mapa inteiro no
// persister a cada alteração.
//
// Leituras (IsBanned, List) usam o último snapshot publicado, sem lock.
// Escritas (Ban, Unban, Load) são serializadas por mu. Um snapshot publicado
// nunca é alterado: cada escrita copia o mapa e publica a cópia.
type BanStore struct {
	mu        sync.Mutex
	current   atomic.Pointer[map[domain.Key]domain.BanRecord]
	persister domain.BanPersister
	logger    *zap.Logger
	now       func() time.Time
}

type BanStoreOption func(*BanStore)

func WithBanLogger(l *zap.Logger) BanStoreOption {
	return func(s *BanStore) { s.logger = l }
}

func WithBanClock(now func() time.Time) BanStoreOption {
	return func(s *BanStore) { s.now = now }
}

// NewBanStore cria um store vazio. persister nil mantém os banimentos só em memória.
func NewBanStore(persister domain.BanPersister, opts ...BanStoreOption) *BanStore {
	s := &BanStore{
		persister: persister,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	empty := make(map[domain.Key]domain.BanRecord)
	s.current.Store(&empty)
	return s
}

// Load reidrata o store a partir do persister. Nunca falha: arquivo ausente
// resulta em mapa vazio e arquivo ilegível também, com um warning no log.
// Retorna quantos banimentos foram carregados.
func (s *BanStore) Load() int {
	if s.persister == nil {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	loaded, err := s.persister.Load()
	if err != nil {
		s.logger.Warn("ban store unreadable, starting with no bans", zap.Error(err))
		loaded = nil
	}

	next := make(map[domain.Key]domain.BanRecord, len(loaded))
	for k, rec := range loaded {
		if k == "" {
			continue
		}
		rec.Identifier = k
		next[k] = rec
	}
	s.current.Store(&next)
	return len(next)
}

// IsBanned implementa domain.BanStore.
func (s *BanStore) IsBanned(key domain.Key) (domain.BanRecord, bool) {
	rec, ok := (*s.current.Load())[key]
	return rec, ok
}

// Ban implementa domain.BanStore. O primeiro banimento vence: um segundo Ban
// para a mesma chave devolve o registro original e created=false.
func (s *BanStore) Ban(key domain.Key, reason, actor string) (domain.BanRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := *s.current.Load()
	if rec, ok := cur[key]; ok {
		return rec, false
	}

	rec := domain.BanRecord{
		Identifier: key,
		BannedAt:   s.now().UTC(),
		Reason:     reason,
		BannedBy:   actor,
	}
	next := cloneBans(cur, len(cur)+1)
	next[key] = rec

	s.flushLocked(next, "ban", key)
	s.current.Store(&next)
	return rec, true
}

// Unban implementa domain.BanStore.
func (s *BanStore) Unban(key domain.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := *s.current.Load()
	if _, ok := cur[key]; !ok {
		return false
	}

	next := cloneBans(cur, len(cur))
	delete(next, key)

	s.flushLocked(next, "unban", key)
	s.current.Store(&next)
	return true
}

// List devolve os banimentos ordenados por identificador.
func (s *BanStore) List() []domain.BanRecord {
	cur := *s.current.Load()
	out := make([]domain.BanRecord, 0, len(cur))
	for _, rec := range cur {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out
}

func (s *BanStore) Len() int {
	return len(*s.current.Load())
}

// flushLocked grava o mapa completo. Falha de persistência não desfaz a
// alteração em memória: ela vale até o fim do processo e vai para o log.
func (s *BanStore) flushLocked(bans map[domain.Key]domain.BanRecord, op string, key domain.Key) {
	if s.persister == nil {
		return
	}
	if err := s.persister.Save(bans); err != nil {
		s.logger.Warn("ban store persist failed; change kept in memory only",
			zap.String("op", op),
			zap.String("identifier", string(key)),
			zap.Error(err),
		)
	}
}

func cloneBans(src map[domain.Key]domain.BanRecord, size int) map[domain.Key]domain.BanRecord {
	out := make(map[domain.Key]domain.BanRecord, size)
	for k, v := range src {
		out[k] = v
	}
	return out
}
