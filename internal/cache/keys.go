package cache

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

func RecommendationStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("recommendation:status:%s", jobID)
}

// RateLimitKey names the request counter of one API key within the fixed
// window starting at window.
func RateLimitKey(tenantID uuid.UUID, keyPrefix string, window time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", tenantID, keyPrefix, window.Unix())
}
