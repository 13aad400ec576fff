// Package app wires application dependencies for the CLI.
//
// LoadConfig resolves Config from flags, CIPHERLINK_* environment
// variables, <home>/config.yaml and defaults through viper. NewWire builds
// the concrete stores, the coordination service client and the services
// from a Config and exposes them via the Wire struct for commands to use.
package app
