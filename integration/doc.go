//go:build integration

// Package integration provides integration tests for the opaclient library.
//
// These tests require Docker and run a real OPA server using testcontainers.
// Run with: go test -tags=integration ./integration/...
package integration
