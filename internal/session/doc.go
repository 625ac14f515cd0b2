// Package session implements the client-side authentication lifecycle.
//
// A [Manager] owns the signed-in user, the derived authenticated and loading flags, and the
// single persisted credential. Hosts create one with [New], call [Manager.Bootstrap] once at
// startup and [Manager.Close] on shutdown.
//
// # States
//
//	Bootstrapping -> Unauthenticated | Authenticated
//	Unauthenticated -> Authenticated            (login)
//	Authenticated -> Refreshing -> Authenticated | Unauthenticated
//	Authenticated -> Unauthenticated            (logout, expiry, 401)
//
// # Generations
//
// Backend calls run without the manager's lock held. Each call captures the session
// generation when it starts; logout and successful logins advance it. A completion whose
// generation no longer matches is dropped and reports [shared.ErrSessionSuperseded], so a
// late login or refresh response can never bring back a session the user ended.
//
// # Watchdog
//
// While a session is active a goroutine checks the stored credential every interval
// (one minute by default). With five minutes or less remaining it refreshes; once expired it
// signs out. Watchdog refreshes are limited to one per interval and a failed refresh ends the
// session instead of retrying.
//
// # Events
//
// State changes and session boundaries are delivered as [Event] values to hooks registered
// with [WithEventHook] and to channels from [Manager.Subscribe]. Hosts react to
// [EventSessionEnded] by moving to their signed-out view.
package session
