package session

// Keyed store layout for one session. Every key shares the session TTL.
func sessionKey(id string) string  { return "session:" + id }
func queueKey(id string) string    { return "queue:" + id }
func seenKey(id string) string     { return "seen:" + id }
func answerKey(id string) string   { return "answer:" + id }
func attemptsKey(id string) string { return "attempts:" + id }

func allKeys(id string) []string {
	return []string{sessionKey(id), queueKey(id), seenKey(id), answerKey(id), attemptsKey(id)}
}
