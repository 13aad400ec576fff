// Package interfaces declares the ports between services, stores and the
// coordination service.
package interfaces
