package scouter

import "time"

type entry struct {
	id        ID
	result    Result
	expiresAt time.Time
}

func (e *entry) cached() *CachedResult {
	return &CachedResult{Result: e.result, Expiry: e.expiresAt}
}
