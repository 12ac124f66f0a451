package catalog

import (
	"testing"

	"github.com/any-hub/bundle-hub/internal/codec"
)

// mustMarshalRaw encodes without validation, the way a hand-edited file would look.
func mustMarshalRaw(t *testing.T, c *Catalog) []byte {
	t.Helper()
	data, err := codec.Marshal(c)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	return data
}
