// Package ingest defines the core types, interfaces and error taxonomy shared
// by the acquisition pipeline: candidates, fetch results, parsed documents,
// canonical articles and run reports.
package ingest
