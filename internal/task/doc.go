// Package task implements the background job system: durable task
// descriptors with a redis-backed FIFO, a coordinating runner that keeps
// at most a fixed number of jobs in flight, and the handlers that
// execute each job kind.
package task
