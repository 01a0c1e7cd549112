// Package api contains the HTTP handlers. Handlers decode and validate
// requests, call into the services, and map typed errors onto HTTP
// statuses; they hold no business logic of their own.
package api
