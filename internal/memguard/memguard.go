// Package memguard applies a soft address-space ceiling to the process so a
// runaway ingestion fails fast instead of exhausting host memory.
package memguard

// Apply attempts to lower the process's address-space soft limit to limit
// bytes. Restricted runtimes may forbid adjusting rlimits; Apply silently
// no-ops there and never turns an unsupported environment into a failure.
func Apply(limit uint64) {
	apply(limit)
}
