// Package delivery posts terminal job notifications to callback endpoints.
//
// Delivery failures are logged and reported in the Outcome. They never change
// the job's own status. A single attempt is the default; a policy with more
// attempts retries network errors, 408, 429 and 5xx with exponential backoff
// and jitter. When an outbox is attached each delivery is persisted before the
// first attempt so Resume can re-drive it after a crash.
package delivery
