// Package api implements the REST API server for ngxweb.
//
// # Overview
//
// The server manages Nginx configuration files, exposes access log traffic
// and edits the load balancer upstream pool. It runs unprivileged; reloading
// Nginx is delegated to the configured binary, which may need sudo rights.
//
// # Security Model
//
//   - Optional API key authentication (X-API-Key or Authorization: Bearer),
//     checked against a plain key or a bcrypt hash
//   - CORS restricted to the configured origins
//   - Request body size limits and server timeouts
//   - Every mutation is written to the audit log
//
// # Request Flow
//
//	HTTP Request → logging → metrics → CORS → body limit → auth → Handler → service
//
// # Adding New Endpoints
//
//  1. Create handler function: func (s *Server) handleFoo(w, r)
//  2. Register route in initRoutes() in server.go
//  3. Map service errors with writeServiceError
//
// # Endpoints
//
// Key endpoint groups:
//   - /api/health - Nginx presence and setup state (public)
//   - /api/config - Configuration file CRUD, diff, block view, deploy
//   - /api/traffic - Access log queries, stats, CSV export, realtime stream
//   - /api/load-balancer/servers - Upstream pool members and health
//   - /api/audit - Recent changes
//   - /metrics - Prometheus metrics (public)
package api
