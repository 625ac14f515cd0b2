// Package server provides the local HTTP gateway that exposes a session to browser and API clients.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation registers "METHOD /path" patterns on an [http.ServeMux].
//
// # Routes
//
// [NewGateway] wires:
//   - GET /session : snapshot of the session state
//   - POST /session/login : sign in with {email, password}
//   - POST /session/logout : sign out; browsers are redirected to the landing route
//   - POST /session/refresh : refresh the access token
//   - GET /me : current profile, requires a session
//   - GET /session/history : recorded session events, requires the admin role
//
// Responses use the same {isSuccess, message, data} envelope as the Auth Backend.
//
// # Gating
//
// [RequireSession] redirects HTML requests to the login route and answers 401 otherwise.
// [RequireRole] answers 403 when the credential lacks a role.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
