// Package outbox persists pending callback deliveries in SQLite so they can
// be retried after a crash.
//
// A record exists only while its delivery is pending or being retried. The
// dispatcher removes it after success or exhaustion. Lock guards resume so a
// single process re-drives the pending set at a time.
package outbox
