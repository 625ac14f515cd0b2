// Package models defines the data exchanged between the session manager, the Auth Backend and the credential store.
//
// The package contains two categories of types:
//
// 1. Session state owned by the client
//   - [Credential] : bearer token, absolute expiry and granted roles, persisted as one record
//   - [UserProfile] : cached copy of the authenticated identity, sourced from the backend
//
// 2. Request payloads and backend envelopes
//   - [Registration] : account creation request with the OTP delivery channel
//   - [OTPVerification] : one-time password check for a contact
//   - [Envelope] : the backend's {isSuccess, message, data} response wrapper
//
// Validation that the UI performs before calling the backend lives next to each payload type.
package models
