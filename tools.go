//go:build tools

package tools

// mockery v3 runs as an installed binary, so there is no blank import
// here. Regenerate pkg/hwexec/mocks with: mockery (from the module root).
