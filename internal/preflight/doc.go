// Package preflight provides readiness checks for the filesystem paths,
// binaries and inference sidecar that captioner depends on.
//
// These checks run in two contexts:
//   - The CLI "run" and "job" commands call RunAll before accepting work and
//     refuse to start when a required check fails.
//   - The CLI "status" command renders every result as a table.
package preflight
