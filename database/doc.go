// Package database binds a bun-backed ORM to a single process-wide database,
// retrying the initial connect, and provides the scoped connection manager,
// query logging hooks, the model registry and connection error
// classification.
package database
