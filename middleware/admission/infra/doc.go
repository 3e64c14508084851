// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - WindowTracker: janela deslizante por chave, com reaper periódico
//   - BanStore: banimentos em memória com persistência do mapa completo
//     (FilePersister em JSON ou SQLitePersister)
//   - AuditLog: log de auditoria em linhas, com rotação via lumberjack
//   - Stats: contadores de decisão em memória, Redis ou Prometheus
package infra
