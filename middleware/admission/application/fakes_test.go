package application

import (
	"sort"
	"sync"
	"time"

	"admission-gateway/middleware/admission/domain"
)

type memTracker struct {
	mu        sync.Mutex
	entries   map[domain.Key][]time.Time
	records   int
	forgotten []domain.Key
}

func newMemTracker() *memTracker {
	return &memTracker{entries: make(map[domain.Key][]time.Time)}
}

func (t *memTracker) Record(key domain.Key, now time.Time, window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records++
	kept := t.entries[key][:0]
	for _, ts := range t.entries[key] {
		if now.Sub(ts) <= window {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	t.entries[key] = kept
	return len(kept)
}

func (t *memTracker) Forget(key domain.Key) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
	t.forgotten = append(t.forgotten, key)
}

func (t *memTracker) recordCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.records
}

type memBans struct {
	mu   sync.Mutex
	bans map[domain.Key]domain.BanRecord
	now  time.Time
}

func newMemBans(now time.Time) *memBans {
	return &memBans{bans: make(map[domain.Key]domain.BanRecord), now: now}
}

func (b *memBans) IsBanned(key domain.Key) (domain.BanRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.bans[key]
	return rec, ok
}

func (b *memBans) Ban(key domain.Key, reason, actor string) (domain.BanRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rec, ok := b.bans[key]; ok {
		return rec, false
	}
	rec := domain.BanRecord{Identifier: key, BannedAt: b.now, Reason: reason, BannedBy: actor}
	b.bans[key] = rec
	return rec, true
}

func (b *memBans) Unban(key domain.Key) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.bans[key]; !ok {
		return false
	}
	delete(b.bans, key)
	return true
}

func (b *memBans) List() []domain.BanRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.BanRecord, 0, len(b.bans))
	for _, rec := range b.bans {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out
}

type recordingAudit struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (a *recordingAudit) Append(ev domain.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
}

func (a *recordingAudit) kinds() []domain.AuditKind {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.AuditKind, 0, len(a.events))
	for _, ev := range a.events {
		out = append(out, ev.Kind)
	}
	return out
}
