package middleware

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func newArtifactApp(body string) *fiber.App {
	app := fiber.New()
	app.Use(ArtifactCache(ArtifactCacheConfig{
		Paths:             []string{"/functions.js", "/functions.json"},
		Weak:              true,
		EnableConditional: true,
	}))
	app.Get("/functions.js", func(c *fiber.Ctx) error {
		return c.SendString(body)
	})
	app.Get("/functions.json", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNotFound)
	})
	app.Get("/index.html", func(c *fiber.Ctx) error {
		return c.SendString("<html></html>")
	})
	return app
}

func TestGenerateETag(t *testing.T) {
	body := []byte(`console.log("add");`)

	weak := generateETag(body, true)
	if weak[:3] != `W/"` || weak[len(weak)-1] != '"' {
		t.Errorf("Expected weak ETag, got %s", weak)
	}

	strong := generateETag(body, false)
	if strong[0] != '"' || strong[len(strong)-1] != '"' {
		t.Errorf("Expected strong ETag, got %s", strong)
	}

	if generateETag(body, true) != weak {
		t.Error("Expected same body to produce same ETag")
	}
	if generateETag([]byte(`console.log("sub");`), true) == weak {
		t.Error("Expected different body to produce different ETag")
	}
}

func TestEtagMatches(t *testing.T) {
	tests := []struct {
		name        string
		etag        string
		ifNoneMatch string
		want        bool
	}{
		{"exact match", `"abc"`, `"abc"`, true},
		{"weak vs strong", `W/"abc"`, `"abc"`, true},
		{"wildcard", `"abc"`, "*", true},
		{"list", `"abc"`, `"x", "abc"`, true},
		{"no match", `"abc"`, `"def"`, false},
		{"empty entries", `"abc"`, ", ,", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := etagMatches(tt.etag, tt.ifNoneMatch); got != tt.want {
				t.Errorf("etagMatches(%q, %q) = %v, want %v", tt.etag, tt.ifNoneMatch, got, tt.want)
			}
		})
	}
}

func TestArtifactCache_SetsHeaders(t *testing.T) {
	app := newArtifactApp("(() => {})();")

	resp, err := app.Test(httptest.NewRequest("GET", "/functions.js", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Header.Get("ETag") == "" {
		t.Error("Expected ETag header on artifact response")
	}
	if got := resp.Header.Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Expected Cache-Control no-cache, got %q", got)
	}
}

func TestArtifactCache_NotModified(t *testing.T) {
	app := newArtifactApp("(() => {})();")

	first, err := app.Test(httptest.NewRequest("GET", "/functions.js", nil))
	if err != nil {
		t.Fatal(err)
	}
	etag := first.Header.Get("ETag")

	req := httptest.NewRequest("GET", "/functions.js", nil)
	req.Header.Set("If-None-Match", etag)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusNotModified {
		t.Errorf("Expected 304, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if len(body) != 0 {
		t.Errorf("Expected empty body on 304, got %q", body)
	}
}

func TestArtifactCache_SkipsOtherPathsAndErrors(t *testing.T) {
	app := newArtifactApp("(() => {})();")

	resp, err := app.Test(httptest.NewRequest("GET", "/index.html", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Header.Get("ETag") != "" {
		t.Error("Expected no ETag on non-artifact path")
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/functions.json", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
	if resp.Header.Get("ETag") != "" || resp.Header.Get("Cache-Control") != "" {
		t.Error("Expected no caching headers on 404")
	}
}

func TestArtifactCache_SkipsNonGet(t *testing.T) {
	app := fiber.New()
	app.Use(ArtifactCache(ArtifactCacheConfig{Paths: []string{"/functions.js"}}))
	app.Post("/functions.js", func(c *fiber.Ctx) error {
		return c.SendString("posted")
	})

	resp, err := app.Test(httptest.NewRequest("POST", "/functions.js", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Header.Get("ETag") != "" {
		t.Error("Expected no ETag for POST")
	}
}
