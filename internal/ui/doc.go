// Package ui implements a terminal session monitor using bubbletea's Elm architecture.
//
// The monitor has two views:
//  1. [SignedInView] : state, user, roles, a live expiry countdown and the event log
//  2. [SignedOutView] : shown once the session ends, with the reason
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Session events flow through a subscription channel; a one second tick re-reads the snapshot so the countdown stays live.
//
// Keys: r refreshes the token, l logs out, q quits. j/k scroll the event log.
package ui
