// Package service manages the background services (database engine, cache
// engine) a preview container depends on. A service is launched with an OS
// command, then polled with a readiness probe at a fixed interval until it
// answers or a hard startup timeout expires. Only a ready service may be
// handed to dependents.
package service
