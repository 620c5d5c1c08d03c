package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Key identifies a cached endpoint result.
type Key struct {
	// Namespace is the endpoint family (e.g., "category", "section")
	Namespace string

	// Params holds every parameter that affects the result
	// (market, selector id, resolved page and limit)
	Params map[string]string
}

// NewKey returns a Key for namespace with no params.
func NewKey(namespace string) Key {
	return Key{Namespace: namespace, Params: make(map[string]string)}
}

// With returns a copy of k with name set to value.
func (k Key) With(name, value string) Key {
	params := make(map[string]string, len(k.Params)+1)
	for n, v := range k.Params {
		params[n] = v
	}
	params[name] = value
	return Key{Namespace: k.Namespace, Params: params}
}

// WithInt is With for integer params.
func (k Key) WithInt(name string, value int) Key {
	return k.With(name, strconv.Itoa(value))
}

// String generates a deterministic cache key string.
// Format: catalog:namespace:param1=val1:param2=val2
//
// Params are sorted by name and values are escaped, so distinct parameter
// sets never render to the same string.
//
// Example:
//
//	catalog:category:id=pop:limit=5:market=US:page=1
func (k Key) String() string {
	parts := []string{"catalog"}

	namespace := strings.Trim(k.Namespace, ":")
	if namespace != "" {
		parts = append(parts, url.PathEscape(namespace))
	}

	if len(k.Params) > 0 {
		names := make([]string, 0, len(k.Params))
		for name := range k.Params {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", url.PathEscape(name), escapeValue(k.Params[name])))
		}
	}

	return strings.Join(parts, ":")
}

// escapeValue escapes the separator so "a:b" cannot collide with a split param.
func escapeValue(v string) string {
	return strings.ReplaceAll(url.PathEscape(v), ":", "%3A")
}
