// Package docs serves the embedded OpenAPI document and a reference UI.
package docs

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"net/http"
)

//go:embed openapi.yaml
var spec []byte

var specETag = func() string {
	sum := sha256.Sum256(spec)
	return `"` + hex.EncodeToString(sum[:8]) + `"`
}()

// GetSpecBytes returns the embedded openapi.yaml.
func GetSpecBytes() []byte {
	return spec
}

// OpenAPIHandler serves openapi.yaml with an ETag derived from its content.
func OpenAPIHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", specETag)
		w.Header().Set("Cache-Control", "no-cache")
		if r.Header.Get("If-None-Match") == specETag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(spec)
	})
}

const scalarPage = `<!doctype html>
<html lang="pt-BR">
  <head>
    <title>CRM API</title>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
  </head>
  <body style="margin: 0">
    <script id="api-reference" data-url="%s"></script>
    <script src="https://cdn.jsdelivr.net/npm/@scalar/api-reference"></script>
  </body>
</html>`

// ScalarDocsHandler renders the Scalar API reference for specURL.
func ScalarDocsHandler(specURL string) http.Handler {
	page := []byte(fmt.Sprintf(scalarPage, specURL))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(page)
	})
}
