package domain

import "time"

const (
	ActorGate  = "admission_gate"
	ActorAdmin = "admin"
)

// BanRecord existe para uma chave se, e somente se, ela está banida.
//
// O formato JSON é o do arquivo persistido: a chave do mapa é o identificador,
// por isso Identifier não é serializado.
type BanRecord struct {
	Identifier Key       `json:"-"`
	BannedAt   time.Time `json:"bannedAt"`
	Reason     string    `json:"reason"`
	BannedBy   string    `json:"by"`
}

// BanStore mantém os banimentos ativos.
//
// Ban é idempotente: se a chave já está banida, o registro existente é
// devolvido sem alteração e created=false.
type BanStore interface {
	IsBanned(key Key) (BanRecord, bool)
	Ban(key Key, reason, actor string) (rec BanRecord, created bool)
	Unban(key Key) bool
	List() []BanRecord
}

// BanPersister grava e lê o mapa completo de banimentos.
//
// Save recebe sempre o mapa inteiro (a unidade de durabilidade é o mapa).
// Load devolve um mapa vazio, sem erro, quando ainda não há nada persistido.
type BanPersister interface {
	Load() (map[Key]BanRecord, error)
	Save(bans map[Key]BanRecord) error
}
