//go:build tools

package tools

// Tool dependencies are not tracked with blank imports.
// mockery v3 is used as an installed binary (not via go run): run mockery
// from the repository root to regenerate the mocks/ packages listed in
// .mockery.yaml.
