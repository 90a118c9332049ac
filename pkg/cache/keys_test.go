package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint_OrderIndependent(t *testing.T) {
	a := Fingerprint("all", []Entry{{ID: "a", Version: "1.0"}, {ID: "b", Version: "2.0"}, {ID: "c", Version: "3.0"}})
	b := Fingerprint("all", []Entry{{ID: "c", Version: "3.0"}, {ID: "a", Version: "1.0"}, {ID: "b", Version: "2.0"}})

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFingerprint_Sensitivity(t *testing.T) {
	base := []Entry{{ID: "a", Version: "1.0"}, {ID: "b", Version: "2.0"}}
	fp := Fingerprint("all", base)

	t.Run("version change", func(t *testing.T) {
		assert.NotEqual(t, fp, Fingerprint("all", []Entry{{ID: "a", Version: "1.1"}, {ID: "b", Version: "2.0"}}))
	})

	t.Run("plugin added", func(t *testing.T) {
		assert.NotEqual(t, fp, Fingerprint("all", append(base, Entry{ID: "c", Version: "1.0"})))
	})

	t.Run("scan type", func(t *testing.T) {
		assert.NotEqual(t, fp, Fingerprint("active-only", base))
	})

	t.Run("separator ambiguity", func(t *testing.T) {
		assert.NotEqual(t,
			Fingerprint("all", []Entry{{ID: "ab", Version: "1"}}),
			Fingerprint("all", []Entry{{ID: "a", Version: "b1"}}))
	})
}

func TestFingerprint_DoesNotMutateInput(t *testing.T) {
	entries := []Entry{{ID: "z", Version: "1"}, {ID: "a", Version: "1"}}
	Fingerprint("all", entries)
	assert.Equal(t, "z", entries[0].ID)
}

func TestFingerprint_Empty(t *testing.T) {
	assert.Equal(t, Fingerprint("all", nil), Fingerprint("all", []Entry{}))
}

func TestSnapshotKey(t *testing.T) {
	key := SnapshotKey("abc")
	assert.Equal(t, "conflictmap:v1:abc", key)
	assert.True(t, strings.HasPrefix(key, keyPrefix))
}
