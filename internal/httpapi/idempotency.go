package httpapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"sync"
)

// maxReplays bounds the replay cache; the oldest key is evicted first.
const maxReplays = 1024

type storedResponse struct {
	BodyHash string
	Status   int
	Payload  []byte
}

// replayCache remembers responses of batch endpoints by Idempotency-Key.
// Single entries use the store-backed key instead (see journal.Service.Create).
type replayCache struct {
	mu    sync.RWMutex
	byKey map[string]storedResponse
	order []string
}

func newReplayCache() *replayCache {
	return &replayCache{byKey: make(map[string]storedResponse)}
}

func (c *replayCache) get(key string) (storedResponse, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.byKey[key]
	return v, ok
}

func (c *replayCache) put(key string, v storedResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byKey[key]; ok {
		return
	}
	if len(c.order) >= maxReplays {
		delete(c.byKey, c.order[0])
		c.order = c.order[1:]
	}
	c.byKey[key] = v
	c.order = append(c.order, key)
}

func hashBytes(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// captureWriter records what a handler writes so it can be replayed.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (c *captureWriter) WriteHeader(status int) {
	c.status = status
	c.ResponseWriter.WriteHeader(status)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.buf.Write(b)
	return c.ResponseWriter.Write(b)
}

// idempotent replays the stored response for a repeated Idempotency-Key with the
// same body, and answers 409 when the key is reused with a different body.
// Server errors are not stored so the client can retry.
func (s *Server) idempotent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Idempotency-Key")
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			badRequest(w, "could not read body")
			return
		}
		key = r.URL.Path + "|" + key
		h := hashBytes(body)
		if prev, ok := s.replays.get(key); ok {
			if prev.BodyHash != h {
				writeErr(w, http.StatusConflict, "idempotency key reused with a different body", "idempotency_mismatch")
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replay", "true")
			w.WriteHeader(prev.Status)
			_, _ = w.Write(prev.Payload)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		cw := &captureWriter{ResponseWriter: w}
		next.ServeHTTP(cw, r)
		if cw.status != 0 && cw.status < http.StatusInternalServerError {
			s.replays.put(key, storedResponse{BodyHash: h, Status: cw.status, Payload: cw.buf.Bytes()})
		}
	})
}
