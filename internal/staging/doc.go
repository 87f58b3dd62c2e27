// Package staging owns per-job workspaces under the configured staging
// directory and the cleanup of workspaces abandoned by crashed runs.
package staging
