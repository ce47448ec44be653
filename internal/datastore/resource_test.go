package datastore

import "testing"

func TestCollectionKeyRoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		identifier string
		version    string
	}{
		{name: "versioned", identifier: "abc-123", version: "2"},
		{name: "unversioned", identifier: "abc-123", version: ""},
		{name: "uuid", identifier: "d5fbb7cd-74d6-4c8f-9b5c-4b1c6d9a1f20", version: "17"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := CollectionKey(tt.identifier, tt.version)
			identifier, version, err := ParseCollection(key)
			if err != nil {
				t.Fatalf("ParseCollection(%q) error = %v", key, err)
			}
			if identifier != tt.identifier || version != tt.version {
				t.Errorf("round trip = (%q, %q), want (%q, %q)", identifier, version, tt.identifier, tt.version)
			}
		})
	}
}

func TestCollectionKeyDistinguishesVersions(t *testing.T) {
	if CollectionKey("abc", "") == CollectionKey("abc", "2") {
		t.Error("unversioned and versioned keys collide")
	}
}

func TestParseCollectionMalformed(t *testing.T) {
	for _, key := range []string{"", "plain", "__leading"} {
		if _, _, err := ParseCollection(key); err == nil {
			t.Errorf("ParseCollection(%q) error = nil, want malformed-key error", key)
		}
	}
}

func TestResourceUniqueID(t *testing.T) {
	r := Resource{Identifier: "abc-123", Version: "2"}
	if got := r.UniqueID(); got != "abc-123__2" {
		t.Errorf("UniqueID() = %q, want abc-123__2", got)
	}
}
