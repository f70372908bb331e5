//go:build mage

// Package main contains Mage build targets for pdf-to-jpeg-service.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const binDir = "bin"

// commands maps binary names to their main packages.
var commands = map[string]string{
	"pdf-to-jpeg":         "./cmd/pdf-to-jpeg",
	"pdf-to-jpeg-service": "./cmd/pdf-to-jpeg-service",
}

// workDirs are the folders the batch tool reads from and writes to.
var workDirs = []string{"pdfData", "output_images"}

// Init creates the input and output folders the batch tool expects.
func Init() error {
	for _, dir := range workDirs {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		fmt.Println("  ", dir)
	}
	return nil
}

// Build compiles both binaries into bin/.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	for name, pkg := range commands {
		out := filepath.Join(binDir, name)
		if err := sh.RunV("go", "build", "-o", out, pkg); err != nil {
			return fmt.Errorf("go build %s: %w", pkg, err)
		}
		fmt.Printf("Built %s\n", out)
	}
	return nil
}

// Test runs the unit tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Check runs go vet and then the tests.
func Check() error {
	if err := sh.RunV("go", "vet", "./..."); err != nil {
		return err
	}
	mg.Deps(Test)
	return nil
}

// Convert builds the batch tool and runs it over pdfData/.
func Convert() error {
	mg.Deps(Build, Init)
	return sh.RunV(filepath.Join(binDir, "pdf-to-jpeg"))
}

// Clean removes build output and generated images.
func Clean() error {
	for _, dir := range []string{binDir, "output_images"} {
		if err := sh.Rm(dir); err != nil {
			return err
		}
	}
	return nil
}
