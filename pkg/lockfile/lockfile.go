// Package lockfile implements advisory locks as O_EXCL marker files.
// The locks guard replacement of shared artifacts like cache archives;
// holders are short-lived, so contention is polled rather than queued.
package lockfile

import (
	"context"
	"fmt"
	"os"
	"time"
)

// Take acquires the lock at path, polling until it frees or ctx ends.
// waiting is invoked once per failed attempt. The returned function
// releases the lock.
func Take(ctx context.Context, path string, waiting func()) (func(), error) {
	if release, ok := try(path); ok {
		return release, nil
	}

	tk := time.NewTicker(500 * time.Millisecond)
	defer tk.Stop()

	for {
		if waiting != nil {
			waiting()
		}

		select {
		case <-tk.C:
			if release, ok := try(path); ok {
				return release, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func try(path string) (func(), bool) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, false
	}

	// holder pid, for whoever has to clean up after a crash
	fmt.Fprintf(f, "%d\n", os.Getpid())
	f.Close()

	return func() { os.Remove(path) }, true
}
