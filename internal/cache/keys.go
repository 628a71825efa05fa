package cache

import "fmt"

// DedupKey is the gate entry for one error signature.
func DedupKey(signature string) string {
	return fmt.Sprintf("dedup:%s", signature)
}

func RateLimitKey(client string) string {
	return fmt.Sprintf("ratelimit:%s", client)
}
