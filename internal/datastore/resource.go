package datastore

import (
	"fmt"
	"strings"
)

// CollectionSeparator joins a resource identifier and version into the
// opaque collection key used by queries. Identifiers are UUIDs, so a double
// underscore can never occur inside either part.
const CollectionSeparator = "__"

// Resource is a localized, storage-backed representation of a remote
// dataset file, keyed by identifier+version. Immutable once localized;
// owned by the localizer.
type Resource struct {
	Identifier string
	Version    string // empty means latest/unversioned
	LocalPath  string
	MimeType   string
}

// UniqueID returns the composite key for this resource.
func (r Resource) UniqueID() string {
	return CollectionKey(r.Identifier, r.Version)
}

// CollectionKey builds the composite key for an identifier+version pair.
// An empty version still contributes a trailing separator so that
// "abc" v"" and "abc" v"2" can never collide.
func CollectionKey(identifier, version string) string {
	return identifier + CollectionSeparator + version
}

// ParseCollection splits a collection key back into identifier and version.
func ParseCollection(collection string) (identifier, version string, err error) {
	idx := strings.LastIndex(collection, CollectionSeparator)
	if idx <= 0 {
		return "", "", fmt.Errorf("malformed collection key: %q", collection)
	}
	return collection[:idx], collection[idx+len(CollectionSeparator):], nil
}
