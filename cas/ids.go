package cas

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewID returns a random identifier for patches, edges, and fixes.
func NewID() string {
	return uuid.NewString()
}

// NewPrefixedID returns a random identifier with a readable prefix, e.g. "edge_...".
func NewPrefixedID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

var (
	ulidMu      sync.Mutex
	ulidEntropy = ulid.Monotonic(rand.Reader, 0)
)

// NewVersionID returns a lexicographically time-ordered identifier. IDs minted
// within the same millisecond still sort in creation order.
func NewVersionID() string {
	return NewVersionIDAt(time.Now())
}

// NewVersionIDAt mints a version identifier for the given instant.
func NewVersionIDAt(t time.Time) string {
	ulidMu.Lock()
	defer ulidMu.Unlock()
	return strings.ToLower(ulid.MustNew(ulid.Timestamp(t), ulidEntropy).String())
}
