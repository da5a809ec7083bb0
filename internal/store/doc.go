// Package store implements the dedup gateway in front of article persistence.
// Concrete repositories live under internal/storage; this package must not
// import database drivers or concrete clients.
package store
