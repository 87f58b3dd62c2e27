// Package main hosts the captioner CLI entrypoint and command graph.
//
// The Cobra command tree composes the engine pool, the inference sidecar
// client, the delivery dispatcher (with its optional SQLite outbox) and the
// job orchestrator, then exposes them as one-shot commands: run a file or
// URL, process a JSON job envelope, warm a model, check dependencies, and
// inspect or re-drive persisted callback deliveries.
//
// Keep this package lean: behaviour belongs in the internal packages and the
// commands only translate flags and render results.
package main
