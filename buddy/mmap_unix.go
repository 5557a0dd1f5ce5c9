//go:build linux || darwin

package buddy

import (
	"golang.org/x/sys/unix"
)

// mapAnon reserves n bytes of anonymous, zero-filled memory to back one
// buddy block, via mmap(2) (grounded on the anonymous-mmap idiom used
// throughout the corpus's other_examples/ for raw page backing, e.g.
// MAP_PRIVATE|MAP_ANONYMOUS page-table/operand-stack allocations).
func mapAnon(n int64) ([]byte, error) {
	return unix.Mmap(-1, 0, int(n), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
}

func unmapAnon(buf []byte) error {
	return unix.Munmap(buf)
}
