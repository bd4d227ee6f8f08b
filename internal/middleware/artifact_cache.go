package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Response headers identifying the artifact version served
const (
	GenerationHeader = "X-Officefn-Generation"
	CycleHeader      = "X-Officefn-Cycle"
)

// ArtifactCacheConfig configures ArtifactCache
type ArtifactCacheConfig struct {
	// Paths are the exact request paths of the artifacts
	Paths []string

	// Weak determines if the ETag should be a weak validator (W/"...")
	Weak bool

	// EnableConditional answers matching If-None-Match with 304
	EnableConditional bool
}

// ArtifactCache adds an ETag and "Cache-Control: no-cache" to successful
// artifact responses, so clients always revalidate but skip unchanged bodies.
func ArtifactCache(config ArtifactCacheConfig) fiber.Handler {
	paths := make(map[string]bool, len(config.Paths))
	for _, p := range config.Paths {
		paths[p] = true
	}

	return func(c *fiber.Ctx) error {
		method := c.Method()
		if method != fiber.MethodGet && method != fiber.MethodHead {
			return c.Next()
		}
		if !paths[c.Path()] {
			return c.Next()
		}

		if err := c.Next(); err != nil {
			return err
		}

		status := c.Response().StatusCode()
		if status < 200 || status >= 300 {
			return nil
		}

		c.Set(fiber.HeaderCacheControl, "no-cache")

		body := c.Response().Body()
		if len(body) == 0 {
			return nil
		}

		etag := generateETag(body, config.Weak)
		c.Set(fiber.HeaderETag, etag)

		if config.EnableConditional {
			if inm := c.Get(fiber.HeaderIfNoneMatch); inm != "" && etagMatches(etag, inm) {
				c.Status(fiber.StatusNotModified)
				c.Response().ResetBody()
			}
		}

		return nil
	}
}

// generateETag hashes the response body
func generateETag(body []byte, weak bool) string {
	hash := sha256.Sum256(body)
	hashStr := hex.EncodeToString(hash[:16])

	if weak {
		return `W/"` + hashStr + `"`
	}
	return `"` + hashStr + `"`
}

// etagMatches checks if etag matches any entry of an If-None-Match header,
// using weak comparison (RFC 7232)
func etagMatches(etag, ifNoneMatch string) bool {
	ifNoneMatch = strings.TrimSpace(ifNoneMatch)
	if ifNoneMatch == "*" {
		return true
	}

	normalized := normalizeETag(etag)
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if normalizeETag(candidate) == normalized {
			return true
		}
	}

	return false
}

func normalizeETag(etag string) string {
	return strings.TrimPrefix(strings.TrimSpace(etag), "W/")
}
