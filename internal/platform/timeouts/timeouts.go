// Package timeouts defines shared timeout constants for the lobby process.
package timeouts

import "time"

// GRPCDial caps the wait time when dialing a gRPC peer.
const GRPCDial = 2 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP and gRPC servers wait for in-flight
// work during graceful shutdown.
const Shutdown = 5 * time.Second

// StoreWrite bounds a single activity log append so a slow disk never
// stalls event handling.
const StoreWrite = 2 * time.Second

// WSWrite bounds a single WebSocket frame write so a client that stops
// reading is dropped instead of holding its writer forever.
const WSWrite = 10 * time.Second
