package utils

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/pricing_backend/config"
)

func GetCacheLifespan() time.Duration {
	lifespan, err := strconv.Atoi(os.Getenv("CACHE_LIFESPAN_MINUTES"))
	if err != nil {
		lifespan = 5
	}
	return time.Duration(lifespan) * time.Minute
}

/* scope resolution cache */

// ResolutionCacheKey identifies one (tenant, scopeType, scopeId, deploymentType)
// resolution result.
func ResolutionCacheKey(tenantId, scopeType, scopeId, deploymentType string) string {
	return fmt.Sprintf("ResolvedModel:%s:%s:%s:%s", tenantId, scopeType, scopeId, deploymentType)
}

func GetCachedResolution(tenantId, scopeType, scopeId, deploymentType string) (int, bool) {
	var modelId int
	exists, err := config.GetRedisObject(ResolutionCacheKey(tenantId, scopeType, scopeId, deploymentType), &modelId)
	if err != nil || !exists {
		return 0, false
	}
	return modelId, true
}

func StoreCachedResolution(tenantId, scopeType, scopeId, deploymentType string, modelId int) {
	// Best-effort; resolution falls back to the DB when Redis is down.
	_ = config.SetRedisObject(ResolutionCacheKey(tenantId, scopeType, scopeId, deploymentType), modelId, GetCacheLifespan())
}
