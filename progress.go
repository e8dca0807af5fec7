package grf

// ProgressFunc is invoked periodically by long-running operations
// (ExtractAll, Save, FullRepack, VerifyIntegrity). done and total describe
// entries processed so far out of the operation's total. Returning false
// requests cancellation: the operation returns success without completing,
// per spec §5.
type ProgressFunc func(done, total int) bool

// throttle wraps cb so it is only actually invoked every n calls (plus
// always on the final call), matching spec §5's "throttled to every 1000
// during directory load and every 100 during verify". A nil cb is
// replaced by a no-op that never cancels.
func throttle(cb ProgressFunc, n int) ProgressFunc {
	if cb == nil {
		return func(int, int) bool { return true }
	}
	if n <= 1 {
		return cb
	}
	return func(done, total int) bool {
		if done%n == 0 || done >= total {
			return cb(done, total)
		}
		return true
	}
}
