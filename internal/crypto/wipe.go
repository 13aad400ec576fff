package crypto

import "runtime"

// Wipe zeroes b in place. It is best-effort: copies the runtime made
// earlier are not reached.
//
//go:noinline
func Wipe(b []byte) {
	clear(b)
	runtime.KeepAlive(b)
}

// WipeKey zeroes a fixed-size key through its slice view.
func WipeKey[K ~[32]byte](k *K) {
	Wipe((*k)[:])
}
