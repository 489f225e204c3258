//go:build !linux

package memguard

func apply(limit uint64) {}
