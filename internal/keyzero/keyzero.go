// Package keyzero clears sensitive byte material in place once it's no
// longer needed, the Go equivalent of the original SPV core's practice of
// memset-ing seed and key buffers before returning from
// BRWalletSignTransaction.
package keyzero

// Bytes overwrites every byte of b with zero.
func Bytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
