// Package server exposes the bank over HTTP.
//
// # Routes
//
//	GET  /health                   liveness, no auth
//	POST /auth/register            JSON {email, password}
//	POST /auth/login               form username=<email>&password=...
//	GET  /bank/me                  any authenticated caller
//	POST /bank/deposit             JSON {amount}
//	POST /bank/transfer            JSON {to_email, amount}
//	GET  /bank/transactions        newest 50 ledger entries of the caller
//	GET  /bank/admin/overview      admin only
//	GET  /bank/admin/audit         admin only, newest 50 audit entries
//
// Errors are returned as {"detail": "<message>"}. Business-rule rejections
// map to 4xx; anything else is logged and returned as 500.
//
// When server.auth_rate_limit is set, /auth requests are throttled per client
// IP and excess requests get 429.
//
// Audit records are always written before the response. The client address
// recorded is the TCP peer address; forwarding headers are not trusted.
package server
