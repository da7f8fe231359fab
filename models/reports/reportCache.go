package reports

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mmdatafocus/stockledger/config"
	"github.com/mmdatafocus/stockledger/utils"
	"github.com/sirupsen/logrus"
)

// Cache stores finished reports as JSON.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, obj any, ttl time.Duration) error
}

// RedisCache keeps reports in the shared Redis client from config.
type RedisCache struct{}

func (RedisCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	return config.GetRedisObject(ctx, key, dest)
}

func (RedisCache) Set(ctx context.Context, key string, obj any, ttl time.Duration) error {
	return config.SetRedisObject(ctx, key, obj, ttl)
}

func reportSlowMs() int64 {
	// Env: REPORT_SLOW_MS (default 500ms)
	ms := int64(500)
	if v := strings.TrimSpace(os.Getenv("REPORT_SLOW_MS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			ms = n
		}
	}
	return ms
}

func (a *Analytics) logSlowReport(ctx context.Context, name, tenantId string, started time.Time) {
	d := time.Since(started)
	if d.Milliseconds() < reportSlowMs() {
		return
	}
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	a.logger.WithFields(logrus.Fields{
		"report":         name,
		"ms":             d.Milliseconds(),
		"tenant_id":      tenantId,
		"correlation_id": cid,
	}).Warn("slow_report")
}

// reportCacheKey is report:<name>:<tenant>:<hash of the resolved query>.
func reportCacheKey(name, tenantId string, params any) (string, error) {
	b, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	sum := sha1.Sum(b)
	return fmt.Sprintf("report:%s:%s:%x", name, tenantId, sum[:10]), nil
}

// cachedReport returns the cached result for params or computes and stores it. Cache
// failures are logged and never fail the report.
func cachedReport[T any](ctx context.Context, a *Analytics, name, tenantId string, params any, compute func() (T, error)) (T, error) {
	defer a.logSlowReport(ctx, name, tenantId, time.Now())
	if a.cache == nil {
		return compute()
	}
	key, err := reportCacheKey(name, tenantId, params)
	if err != nil {
		return compute()
	}
	var cached T
	ok, err := a.cache.Get(ctx, key, &cached)
	if err != nil {
		config.LogError(a.logger, moduleName, name, "read report cache", key, err)
	} else if ok {
		return cached, nil
	}
	result, err := compute()
	if err != nil {
		return result, err
	}
	if err := a.cache.Set(ctx, key, result, a.cacheTTL); err != nil {
		config.LogError(a.logger, moduleName, name, "write report cache", key, err)
	}
	return result, nil
}
