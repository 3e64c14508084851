package infra

import (
	"sync"
	"time"

	"admission-gateway/middleware/admission/domain"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

const trackerShards = 64

// WindowTracker é a janela deslizante por chave: guarda os instantes de chegada
// de cada identificador, em ordem de chegada.
//
// O mapa é particionado em shards (xxhash da chave) para que chaves diferentes
// não disputem o mesmo mutex. Record e Reap usam o mesmo lock do shard.
type WindowTracker struct {
	shards [trackerShards]trackerShard
	logger *zap.Logger
}

type trackerShard struct {
	mu      sync.Mutex
	entries map[domain.Key][]time.Time
}

type TrackerOption func(*WindowTracker)

func WithTrackerLogger(l *zap.Logger) TrackerOption {
	return func(t *WindowTracker) { t.logger = l }
}

func NewWindowTracker(opts ...TrackerOption) *WindowTracker {
	t := &WindowTracker{logger: zap.NewNop()}
	for i := range t.shards {
		t.shards[i].entries = make(map[domain.Key][]time.Time)
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record implementa domain.WindowTracker.
func (t *WindowTracker) Record(key domain.Key, now time.Time, window time.Duration) int {
	sh := t.shard(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	kept := pruneWindow(sh.entries[key], now, window)
	kept = append(kept, now)
	sh.entries[key] = kept
	return len(kept)
}

// Forget remove a entrada da chave (se existir).
func (t *WindowTracker) Forget(key domain.Key) {
	sh := t.shard(key)

	sh.mu.Lock()
	delete(sh.entries, key)
	sh.mu.Unlock()
}

// Count devolve quantas requisições da chave ainda estão na janela, sem registrar.
func (t *WindowTracker) Count(key domain.Key, now time.Time, window time.Duration) int {
	sh := t.shard(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	n := 0
	for _, ts := range sh.entries[key] {
		if now.Sub(ts) <= window {
			n++
		}
	}
	return n
}

// Len é o número de chaves com entrada no tracker.
func (t *WindowTracker) Len() int {
	n := 0
	for i := range t.shards {
		sh := &t.shards[i]
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

// Reap descarta timestamps expirados de todas as chaves e remove as entradas
// que ficaram vazias. Retorna quantas chaves foram removidas.
func (t *WindowTracker) Reap(now time.Time, window time.Duration) int {
	removed := 0
	for i := range t.shards {
		sh := &t.shards[i]
		sh.mu.Lock()
		for k, ts := range sh.entries {
			kept := pruneWindow(ts, now, window)
			if len(kept) == 0 {
				delete(sh.entries, k)
				removed++
				continue
			}
			sh.entries[k] = kept
		}
		sh.mu.Unlock()
	}
	return removed
}

// StartReaper inicia uma goroutine que roda Reap a cada `every`.
// Pare cancelando o contexto.
func (t *WindowTracker) StartReaper(ctx DoneContext, every, window time.Duration) {
	if every <= 0 {
		return
	}

	tick := time.NewTicker(every)
	go func() {
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-tick.C:
				removed := t.Reap(now, window)
				if removed > 0 {
					t.logger.Debug("reaper removed idle identifiers",
						zap.Int("removed", removed),
						zap.Int("tracked", t.Len()),
					)
				}
			}
		}
	}()
}

func (t *WindowTracker) shard(key domain.Key) *trackerShard {
	return &t.shards[xxhash.Sum64String(string(key))%trackerShards]
}

// pruneWindow mantém apenas t com now-t <= window, reaproveitando o array.
func pruneWindow(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	kept := ts[:0]
	for _, at := range ts {
		if now.Sub(at) <= window {
			kept = append(kept, at)
		}
	}
	return kept
}

// DoneContext é o mínimo necessário para aceitar context.Context sem importar context aqui.
// (Permite reuso em libs sem acoplar.)
type DoneContext interface {
	Done() <-chan struct{}
}
