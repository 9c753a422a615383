// adpchat CI/CD
//
// Package main provides reproducible builds and tests locally and in GitHub actions.
package main

import (
	"context"

	"dagger/adpchat/internal/dagger"
)

// Adpchat is the main module for the adpchat CI/CD pipeline
type Adpchat struct {
	// Project source directory
	//
	// +private
	Source *dagger.Directory
}

// New creates a new adpchat CI/CD module instance
func New(
	// Project source directory.
	//
	// +defaultPath="/"
	// +ignore=[".git", "build", "tmp"]
	source *dagger.Directory,
) *Adpchat {
	return &Adpchat{
		Source: source,
	}
}

// goContainer returns an Alpine Go container with the project source
// mounted. Nothing in adpchat needs cgo.
func (a *Adpchat) goContainer() *dagger.Container {
	return dag.Container().
		From("golang:1.25-alpine").
		WithEnvVariable("CGO_ENABLED", "0").
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build")).
		WithWorkdir("/src").
		WithDirectory("/src", a.Source)
}

// Test runs the adpchat unit tests via "go test"
//
// +check
func (a *Adpchat) Test(ctx context.Context) (string, error) {
	return a.goContainer().
		WithExec([]string{"go", "test", "-race", "./..."}).
		Stdout(ctx)
}
