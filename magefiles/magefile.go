//go:build mage

// Package main provides build targets for the back-office module using Mage.
//
// Usage:
//
//	mage build   Compile server and backoffice binaries to bin/
//	mage test    Run all tests with the race detector
//	mage cover   Write coverage.out and print the total
//	mage lint    Run go vet and golangci-lint
//	mage swag    Format swagger annotations
//	mage run     Build and start the server
//	mage clean   Remove build artifacts
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const binaryDir = "bin"

var binaries = map[string]string{
	"server":     "./cmd/server",
	"backoffice": "./cmd/backoffice",
}

func ldflags() string {
	v := os.Getenv("VERSION")
	if v == "" {
		v = "dev"
	}
	return "-X main.version=" + v
}

// Build compiles both binaries to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	for name, pkg := range binaries {
		if err := sh.RunV("go", "build", "-ldflags", ldflags(), "-o", filepath.Join(binaryDir, name), pkg); err != nil {
			return fmt.Errorf("build %s: %w", name, err)
		}
	}
	return nil
}

// Test runs all tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Cover writes coverage.out and prints the total.
func Cover() error {
	if err := sh.RunV("go", "test", "-coverprofile=coverage.out", "./..."); err != nil {
		return err
	}
	return sh.RunV("go", "tool", "cover", "-func=coverage.out")
}

// Lint runs go vet and golangci-lint.
func Lint() error {
	if err := sh.RunV("go", "vet", "./..."); err != nil {
		return err
	}
	return sh.RunV("golangci-lint", "run", "./...")
}

// Swag formats the swagger annotations of the handlers.
func Swag() error {
	return sh.RunV("swag", "fmt", "-d", "./internal/http/handlers")
}

// Run builds and starts the server.
func Run() error {
	mg.Deps(Build)
	return sh.RunV(filepath.Join(binaryDir, "server"))
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	return os.RemoveAll("coverage.out")
}
