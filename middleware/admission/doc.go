// Package admission fornece adapters HTTP (net/http) para o controle de admissão
// com janela deslizante e banimento permanente.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (Gate.Decide, AdminService.Unban) sem net/http
//   - infra: implementações concretas (janela, banimentos, auditoria, estatísticas)
//   - admission (este pacote): middleware HTTP + extração de chave + tradução para status/JSON
//
// Fluxo no gateway:
//
//   1) Extrai a chave do cliente (header/XFF/IP)
//   2) Chama o Gate para obter a decisão
//   3) Se negado, responde 403 (já banido), 429 (acabou de estourar) ou 400 (sem chave)
//   4) Se permitido, chama o próximo handler (ex: reverse proxy)
//
// O desbanimento passa por AdminHandler, protegido por segredo compartilhado.
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o comportamento,
// como MAX_REQUESTS, WINDOW, CLEANUP_INTERVAL e ADMIN_SECRET.
package admission
