// Package realtimecoordinator binds client connections to meeting channels
// and participants, fans committed events out to every connection of a
// channel, and runs the ephemeral done-state presence exchange between peers.
package realtimecoordinator
