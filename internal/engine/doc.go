// Package engine owns the process-wide cache of loaded inference engines.
//
// A Pool lazily loads one engine per (kind, model, language, device,
// precision) key through a Loader and hands out shared Handles. Inference on
// a Handle is serialized; different Handles run in parallel. When the
// preferred precision fails to load, the pool tries the fallback precision
// exactly once.
package engine
