// Package commands defines the cipherlink CLI and wires dependencies for subcommands.
//
// Commands
//
//   - init         Create a new account with this device as its primary
//   - fingerprint  Print an identity fingerprint
//   - register     Publish pre-keys to the coordination service
//   - link-device  Link the device behind a link URL (run on the primary)
//   - await-link   Show a link URL and wait to be linked (run on the new device)
//   - account      Show a stored account record
//
// # Implementation
//
// The root command resolves configuration through viper (flags, then
// CIPHERLINK_* environment variables, then <home>/config.yaml) and builds
// the dependency graph (stores, services, relay client) before any
// subcommand runs. Every subcommand runs under a context cancelled by
// SIGINT or SIGTERM.
package commands
