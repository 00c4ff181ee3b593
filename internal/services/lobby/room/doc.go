// Package room owns lobby room state: the member registry, the single-admin
// election policy, and the per-room inactivity countdown.
//
// All mutation of rooms and members goes through Registry. Election and
// Monitor act on rooms only through Registry's per-room critical section, so
// every operation on one room is serialised while different rooms proceed in
// parallel. Nothing in this package performs network I/O; callers broadcast
// the results.
package room
