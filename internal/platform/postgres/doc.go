// Package postgres contains the PostgreSQL-backed implementations of the
// store interfaces, along with the embedded schema migrations.
package postgres
