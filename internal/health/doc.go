// Package health scores an assembled timeline for legibility and labelling
// problems. Check is pure and always returns a report.
package health
