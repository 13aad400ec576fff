// Package registration records which account this device belongs to and
// what device id it holds within it.
package registration
