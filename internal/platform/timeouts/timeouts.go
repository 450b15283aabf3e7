// Package timeouts defines shared timeout constants used by the live service.
package timeouts

import "time"

// Probe bounds a full health probe, dial plus SERVING check.
const Probe = 5 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers wait for in-flight work during graceful
// shutdown.
const Shutdown = 5 * time.Second

// WSWrite bounds a single frame write to a websocket peer.
const WSWrite = 10 * time.Second
