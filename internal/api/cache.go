package api

import (
	"bytes"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// cachedResponse is a 200 response body kept for the cache TTL.
type cachedResponse struct {
	contentType string
	body        []byte
}

// responseCache holds latest-reading responses by request URI. It is
// flushed whenever a reading is accepted, so the TTL only bounds staleness
// from writes made by another process.
type responseCache struct {
	entries *gocache.Cache
}

func newResponseCache(ttl time.Duration) *responseCache {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &responseCache{entries: gocache.New(ttl, 2*ttl)}
}

func (c *responseCache) get(key string) (cachedResponse, bool) {
	v, ok := c.entries.Get(key)
	if !ok {
		return cachedResponse{}, false
	}
	return v.(cachedResponse), true //nolint:errcheck // only cachedResponse is stored
}

func (c *responseCache) set(key string, resp cachedResponse) {
	c.entries.SetDefault(key, resp)
}

func (c *responseCache) flush() {
	c.entries.Flush()
}

// recordingWriter captures the body while passing it through.
type recordingWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (w *recordingWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

// cacheMiddleware serves GET responses from the cache when enabled.
func (s *Server) cacheMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cache == nil || r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		key := r.URL.RequestURI()
		if resp, ok := s.cache.get(key); ok {
			w.Header().Set("Content-Type", resp.contentType)
			w.Header().Set("X-Cache", "HIT")
			w.WriteHeader(http.StatusOK)
			w.Write(resp.body) //nolint:errcheck // Best-effort write to response
			return
		}

		w.Header().Set("X-Cache", "MISS")
		rec := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if rec.status == http.StatusOK {
			s.cache.set(key, cachedResponse{
				contentType: rec.Header().Get("Content-Type"),
				body:        bytes.Clone(rec.buf.Bytes()),
			})
		}
	})
}
