package alloc

import (
	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
)

// The process-wide heap is explicit global state: it is installed exactly
// once at startup, before anything attempts a dynamic allocation, and is
// never reconstructed for the lifetime of the process. Only a Locked heap
// can be installed, so every consumer goes through the exclusive-access
// domain.
var (
	globalMutex sync.Mutex
	globalHeap  *Locked
)

// InstallGlobal installs the process-wide heap. It panics if a heap has
// already been installed or if heap is nil; there is no teardown.
func InstallGlobal(heap *Locked) {
	globalMutex.Lock()
	defer globalMutex.Unlock()

	if heap == nil {
		panic(errors.New("cannot install a nil global heap"))
	}
	if globalHeap != nil {
		panic(errors.New("a global heap is already installed"))
	}

	globalHeap = heap
	heap.logger.Info("installed global heap",
		slog.String("Strategy", heap.Kind().String()),
	)
}

// Global returns the process-wide heap. It panics if InstallGlobal has not
// run yet, since allocating before the heap exists cannot be recovered.
func Global() *Locked {
	globalMutex.Lock()
	defer globalMutex.Unlock()

	if globalHeap == nil {
		panic(errors.New("no global heap has been installed"))
	}
	return globalHeap
}

// GlobalInstalled reports whether a process-wide heap exists yet.
func GlobalInstalled() bool {
	globalMutex.Lock()
	defer globalMutex.Unlock()

	return globalHeap != nil
}
