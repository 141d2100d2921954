// Package gateway aggregates deployed routes behind one externally
// addressable base URL.
//
// # Composition
//
// Composer.Compose takes route futures and returns a Gateway whose BaseURL
// future resolves once every route has resolved and the Registrar accepted
// them. A pending route keeps the whole composition pending. A rejected route
// or a failed registration rejects it; nothing is retried.
//
// The printed route line is built with route.JoinURL:
//
//	function deployed to: http://127.0.0.1:41817/hello
//
// # Local Server
//
// Server is the Registrar used by the CLI. It listens on first Register and
// keeps one base URL for its lifetime; each Register swaps in a freshly built
// chi router:
//
//   - event_handler targets are resolved per request through a
//     HandlerResolver and invoked in process
//   - http_proxy targets are reverse proxied to the exact target URI
//
// When a token verifier is configured every route requires a bearer token
// (see package auth). With gateway.tailscale.enabled the listener is a tsnet
// node on :80 and the base URL uses its MagicDNS name.
package gateway
