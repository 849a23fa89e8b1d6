// Package contract holds tests that pin externally visible surfaces.
//
// The tests fail when a persisted table, a wire field, or a gRPC service
// method is renamed or removed, so breaking changes surface before they
// reach deployed clients or existing databases.
package contract
