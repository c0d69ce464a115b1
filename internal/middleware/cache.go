package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const responseMetaKey = "response_meta"

// responseMeta accumulates per-request metadata that handlers surface in the
// response envelope, currently catalog cache info and serving time.
type responseMeta struct {
	start    time.Time
	cacheHit *bool
}

func (m *responseMeta) toMap() map[string]interface{} {
	out := map[string]interface{}{
		"served_in_ms": time.Since(m.start).Milliseconds(),
	}
	if m.cacheHit != nil {
		out["cache_hit"] = *m.cacheHit
	}
	return out
}

// WithResponseMeta begins metadata collection for the request. Handlers that
// want the metadata in their envelope read it back with ExtractMeta.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(responseMetaKey, &responseMeta{start: time.Now()})
		c.Next()
	}
}

// SetCacheHit records whether the response was served from the catalog cache.
// A no-op when WithResponseMeta is not installed on the route.
func SetCacheHit(c *gin.Context, hit bool) {
	if meta := metaFromContext(c); meta != nil {
		meta.cacheHit = &hit
	}
}

// ExtractMeta renders the collected metadata for the response envelope, or
// nil when the route does not collect any.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	meta := metaFromContext(c)
	if meta == nil {
		return nil
	}
	return meta.toMap()
}

func metaFromContext(c *gin.Context) *responseMeta {
	if c == nil {
		return nil
	}
	if raw, exists := c.Get(responseMetaKey); exists {
		if meta, ok := raw.(*responseMeta); ok {
			return meta
		}
	}
	return nil
}
