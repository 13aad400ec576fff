// Package types holds the plain value types of the device-linking domain:
// service identifiers, key material, the root key sum type, the provisioning
// message and the persistent account record.
package types
