//go:build unix

package arena

import "golang.org/x/sys/unix"

// ReserveHeap maps an anonymous, zeroed, page-aligned region to back a heap.
// The returned release function unmaps the region; it must not be used
// afterward.
func ReserveHeap(size int) ([]byte, func() error, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, nil, err
	}
	return data, func() error {
		return unix.Munmap(data)
	}, nil
}
