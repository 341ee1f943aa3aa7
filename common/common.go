// Package common holds shared constants for the tickrelay binaries.
package common

// PackageName is used as the metrics namespace and the service name in
// request logs.
const PackageName = "tickrelay"

// Version is set at build time via -ldflags.
var Version = "dev"
