// Package buildinfo reports the worldsnap version.
//
// Release builds inject values with ldflags:
//
//	go build -ldflags "-X github.com/yndnr/worldsnap/internal/infra/buildinfo.Version=v0.3.0"
//
// Without ldflags, the commit and Go version come from the module build
// information embedded by the toolchain.
package buildinfo
