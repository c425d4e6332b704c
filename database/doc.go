// Package database owns the connection handle: configuration loading,
// connection management for MySQL, PostgreSQL and SQLite via Bun, health
// checks, query hooks, logging, and driver error classification.
package database
