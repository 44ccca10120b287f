package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// ScopePublic is the auth scope for unauthenticated calls. Authenticated
// calls use the credential's username so users never share cached responses
// to personalized endpoints.
const ScopePublic = "public"

// RequestKey derives the deterministic cache key for an upstream HTTP call.
// POST bodies are hashed so keys stay bounded.
func RequestKey(method, scope, url string, body []byte) string {
	if len(body) == 0 {
		return fmt.Sprintf("%s|%s|%s", method, scope, url)
	}
	sum := sha1.Sum(body)
	return fmt.Sprintf("%s|%s|%s|%s", method, scope, url, hex.EncodeToString(sum[:]))
}

// MetadataKey derives the cache key for a metadata lookup.
func MetadataKey(mediaType string, id int64, language string) string {
	return fmt.Sprintf("meta|%s|%d|%s", mediaType, id, language)
}
