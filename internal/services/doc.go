// Package services implements the client side of the Auth Backend's REST API.
//
// # Raw Requests
//
// [APIService] sends JSON requests relative to a base URL and returns an [APIResponse]
// without interpreting the status code. A bearer token placed on the context with
// [ContextWithToken] is attached as the Authorization header.
//
// # Auth Endpoints
//
// [AuthService] maps the account endpoints onto typed calls:
//   - POST /auth/register
//   - POST /auth/verify-otp
//   - POST /auth/login
//   - POST /auth/refresh-token
//   - POST /auth/logout
//   - GET /user/profile
//
// Responses use the {isSuccess, message, data} envelope. Refresh also accepts the credential
// payload without an envelope.
//
// Authenticated endpoints read their bearer token from an [oauth2.TokenSource], normally the
// credential repository, unless the context already carries one.
//
// # Error Handling
//
// Failures are returned as [*shared.BackendError] whose message is the backend's own text:
//   - [shared.ErrNetwork] : transport failure, generic message
//   - [shared.ErrAuthentication] : login rejected
//   - [shared.ErrUnauthorized] : 401 on an authenticated endpoint
//   - [shared.ErrValidation] : registration rejected
//   - [shared.ErrOTP] : OTP mismatch or expiry
//   - [shared.ErrRefreshFailed] : refresh rejected
//
// # Credential Payloads
//
// When a login or refresh payload omits expiresAt or roles they are read from the access
// token's JWT claims (exp, roles or role) without verifying the signature.
package services
