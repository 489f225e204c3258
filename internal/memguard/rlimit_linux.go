//go:build linux

package memguard

import "syscall"

func apply(limit uint64) {
	var rl syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_AS, &rl); err != nil {
		return
	}
	if rl.Max != ^uint64(0) && limit > rl.Max {
		limit = rl.Max
	}
	rl.Cur = limit
	// Setrlimit may be denied in sandboxed runtimes; that is fine.
	_ = syscall.Setrlimit(syscall.RLIMIT_AS, &rl)
}
