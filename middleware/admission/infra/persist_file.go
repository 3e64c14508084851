package infra

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"admission-gateway/middleware/admission/domain"
)

// FilePersister grava o mapa de banimentos como um documento JSON indentado:
//
//	{
//	  "10.0.0.1": {"bannedAt": "...", "reason": "exceeded_25_per_10000ms", "by": "admission_gate"}
//	}
//
// A escrita vai para um arquivo temporário (com fsync) e depois é renomeada,
// então o arquivo nunca fica pela metade.
type FilePersister struct {
	path string
}

func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

func (p *FilePersister) Path() string { return p.path }

func (p *FilePersister) Load() (map[domain.Key]domain.BanRecord, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[domain.Key]domain.BanRecord{}, nil
		}
		return nil, fmt.Errorf("ban store: read %s: %w", p.path, err)
	}
	bans := map[domain.Key]domain.BanRecord{}
	if len(data) == 0 {
		return bans, nil
	}
	if err := json.Unmarshal(data, &bans); err != nil {
		return nil, fmt.Errorf("ban store: parse %s: %w", p.path, err)
	}
	if bans == nil {
		bans = map[domain.Key]domain.BanRecord{}
	}
	return bans, nil
}

func (p *FilePersister) Save(bans map[domain.Key]domain.BanRecord) error {
	data, err := json.MarshalIndent(bans, "", "  ")
	if err != nil {
		return fmt.Errorf("ban store: marshal: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("ban store: ensure dir: %w", err)
	}
	tmp := p.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("ban store: open temp: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("ban store: write temp: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("ban store: sync temp: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("ban store: close temp: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("ban store: rename: %w", err)
	}
	return nil
}
