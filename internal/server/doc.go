// Package server hosts the Fiber HTTP service that exposes a gateway.Gateway
// over the JSON wire contract spoken by gateway.HTTPGateway. It backs the
// -serve-backend development mode and the HTTP round-trip tests; the
// request-id middleware mirrors the header the client sends so both sides log
// the same identifier.
package server
