package mw

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

type cachedResponse struct {
	status int
	body   []byte
	ctype  string
}

type bodyCapture struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyCapture) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w bodyCapture) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// ResponseCache caches successful GET responses by request URI. Forecast
// and alert reads repeat heavily between ingest cycles, so a short TTL
// absorbs most of the read load without serving stale data for long.
func ResponseCache(store *cache.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Request.RequestURI
		if v, found := store.Get(key); found {
			cached := v.(cachedResponse)
			c.Data(cached.status, cached.ctype, cached.body)
			c.Abort()
			return
		}

		bc := &bodyCapture{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = bc

		c.Next()

		if bc.Status() >= 200 && bc.Status() < 300 {
			store.Set(key, cachedResponse{
				status: bc.Status(),
				body:   append([]byte(nil), bc.body.Bytes()...),
				ctype:  bc.Header().Get("Content-Type"),
			}, ttl)
		}
	}
}
