// Package provisioning links a new device to an existing account.
//
// Manager runs on the primary. Given the link URL the new device displays,
// it snapshots the account's identity and root key material in one key
// state transaction, requests a provisioning code from the coordination
// service, seals a provisioning message to the new device's ephemeral key
// and drops it into the device's mailbox.
//
// Coordinator runs on the new device. It opens the mailbox, waits for the
// sealed message, redeems the provisioning code for a device id, installs
// the key material, records the primary's peer extra public key on the
// account record and finally publishes pre-keys.
package provisioning
