// Package sidecar loads and drives inference engines hosted by a local
// model-serving process over HTTP.
//
// The sidecar owns the models. Each engine.Loader call creates a remote
// engine instance and returns a thin adapter that posts normalized audio as
// multipart form data. Speaker identifiers returned by the sidecar are mapped
// to small integers in the order they first appear.
package sidecar
