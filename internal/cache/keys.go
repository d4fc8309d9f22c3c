package cache

import (
	"net/url"
	"strings"
	"time"
)

// TTL tiers. Short for list/query results and derived aggregates, Medium for query
// result sets that change slowly, Long for single-entity lookups by id or alias.
type TTL struct {
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

var DefaultTTL = TTL{
	Short:  5 * time.Minute,
	Medium: 30 * time.Minute,
	Long:   60 * time.Minute,
}

// Keys derives cache keys for one entity namespace, e.g. "catalog:product".
//
//	{ns}:id:{id}            single entity by primary id
//	{ns}:{kind}:{value}     single entity by unique secondary key (slug, sku)
//	{ns}:list:{params}      one list query shape, params fully encoded
type Keys struct {
	ns string
}

func NewKeys(namespace string) Keys { return Keys{ns: namespace} }

func (k Keys) Namespace() string { return k.ns }

func (k Keys) ID(id string) string { return k.ns + ":id:" + id }

func (k Keys) Alias(kind, value string) string { return k.ns + ":" + kind + ":" + value }

func (k Keys) ListPrefix() string { return k.ns + ":list:" }

// List embeds every parameter of the query in the key. url.Values.Encode sorts by name,
// so equal parameter sets always map to the same key.
func (k Keys) List(params url.Values) string {
	return k.ListPrefix() + params.Encode()
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// matchPrefix turns a literal prefix into a SCAN MATCH pattern.
func matchPrefix(prefix string) string {
	return globEscaper.Replace(prefix) + "*"
}
