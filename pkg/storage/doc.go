// Package storage opens the backing connections gatehouse runs on:
// PostgreSQL for policies, bindings and the directory, Redis for the
// session registry and rate limiting.
package storage
