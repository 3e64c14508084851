// Package application contém os casos de uso de admissão.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Gate.Decide(attempt, limits) retorna uma Decision (allow/deny + motivo)
// e AdminService.Unban desfaz um banimento mediante o segredo compartilhado.
package application
