package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/Sternrassler/pmid-resolver/pkg/query"
)

// KeyPrefix namespaces all keys written by this package.
const KeyPrefix = "pmid"

// CacheKey represents a unique identifier for a cached payload.
type CacheKey struct {
	// Endpoint is the request path (e.g., "/entrez/eutils/esearch.fcgi").
	Endpoint string

	// QueryParams are the query parameters without credentials.
	QueryParams url.Values
}

// KeyFromTarget derives a cache key from a request URL, dropping the
// credential parameter.
func KeyFromTarget(target string) (CacheKey, error) {
	u, err := url.Parse(target)
	if err != nil {
		return CacheKey{}, fmt.Errorf("parse target: %w", err)
	}

	params := u.Query()
	params.Del(query.CredentialParam)

	return CacheKey{
		Endpoint:    u.Host + u.Path,
		QueryParams: params,
	}, nil
}

// String generates a deterministic cache key string.
// Format: pmid:endpoint:param1=val1:param2=val2
//
// Example:
//
//	pmid:eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi:db=pubmed:term="Study of X"[Title:~3]
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.QueryParams.Get(key)))
		}
	}

	return strings.Join(parts, ":")
}
