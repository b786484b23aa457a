package cache

import "strconv"

// JobProgressKey holds the latest poll snapshot of a portal job.
func JobProgressKey(jobID string) string {
	return "job:progress:" + jobID
}

// RateLimitKey holds the request counter of one API key's current window.
func RateLimitKey(keyPrefix string) string {
	return "ratelimit:" + keyPrefix
}

// LeaderboardKey holds a rendered leaderboard page of the given size.
func LeaderboardKey(limit int) string {
	return "leaderboard:" + strconv.Itoa(limit)
}
