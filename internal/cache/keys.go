package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func TopologyVersionKey(tenantID uuid.UUID) string {
	return fmt.Sprintf("topology:version:%s", tenantID)
}

// TopologyViewKey addresses a cached GetTopology result for one filter at one generation.
func TopologyViewKey(tenantID uuid.UUID, version int64, filterHash string) string {
	return fmt.Sprintf("topology:view:%s:%d:%s", tenantID, version, filterHash)
}

func ServiceViewKey(tenantID uuid.UUID, version int64, serviceID int64) string {
	return fmt.Sprintf("topology:service:%s:%d:%d", tenantID, version, serviceID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
