// Package live implements the real-time session broker for classroom
// activities.
//
// Connections join activity rooms, instructors drive a per-activity session
// through its lifecycle, and submitted responses are relayed to the room. All
// state is held in memory for the lifetime of the process; course and
// activity records, scoring, and durable response storage belong to other
// services.
package live
