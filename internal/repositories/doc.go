// Package repositories implements SQLite persistence for the client session.
//
// Key Implementations:
//   - [CredentialRepository] : the single persisted [models.Credential], written as one atomic row
//   - [EventRepository] : append-only history of session lifecycle events
//
// The credential row replaces the browser's three separate storage keys (token, expiry, roles).
// A single upsert statement writes all three, so a crash can never leave a partial credential behind.
// Rows that are nevertheless incomplete or unparseable are treated as absent and cleared on read.
//
// [CredentialRepository.TokenSource] exposes the stored credential read-only to the HTTP layer as an [oauth2.TokenSource].
//
// Events carry a sequence number from a counter table bumped in the same transaction as the insert,
// giving a gapless ordering independent of UUIDs and clock skew.
package repositories
