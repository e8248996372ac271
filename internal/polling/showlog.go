package polling

import (
	"github.com/wiseops/wise/internal/rcon/parsing"
)

// dedupWindowSeconds is how long a log line stays in the known set. The
// server reports the last minute of logs on every fetch; twice that is
// enough slack for clock skew between fetches.
const dedupWindowSeconds = 120

// mergeLogs splits fetched lines into the ones never seen before and
// folds all of them into known. Entries older than the window, measured
// against now (seconds since epoch), are pruned. Merging the same batch
// twice yields no untracked lines the second time.
func mergeLogs(known map[parsing.LogLine]struct{}, fetched []parsing.LogLine, now uint64) []parsing.LogLine {
	var untracked []parsing.LogLine
	for _, line := range fetched {
		if _, seen := known[line]; !seen {
			untracked = append(untracked, line)
			known[line] = struct{}{}
		}
	}

	// Only lines strictly younger than the window stay known.
	for line := range known {
		if line.Timestamp+dedupWindowSeconds <= now {
			delete(known, line)
		}
	}
	return untracked
}
