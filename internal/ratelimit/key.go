package ratelimit

import (
	"fmt"
	"strings"
)

// KeyForUser builds the limiter key for a user. Scope separates independent
// budgets, for example chat and upload; an empty scope shares one budget.
func KeyForUser(userID uint64, scope string) string {
	if userID == 0 {
		return ""
	}
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return fmt.Sprintf("u:%d", userID)
	}
	return fmt.Sprintf("u:%d:%s", userID, scope)
}
