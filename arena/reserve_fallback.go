//go:build !unix

package arena

// ReserveHeap allocates a zeroed region to back a heap when mmap is not
// available.
func ReserveHeap(size int) ([]byte, func() error, error) {
	return make([]byte, size), func() error { return nil }, nil
}
