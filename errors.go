package kheap

import "github.com/pkg/errors"

// ErrOutOfMemory is the error returned from Allocate when a request cannot be
// satisfied, either because no suitable free memory remains or because the
// end-address computation would overflow. It is the only recoverable failure
// an allocator produces.
var ErrOutOfMemory error = errors.New("out of memory")

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")
