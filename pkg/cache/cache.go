package cache

import (
	"context"

	"assessd/pkg/domain"
)

// TouchCache holds the hot timing state of in-flight evidence forms so
// each item save can compute elapsed time without a DB read. Entries are
// keyed by evidence id. Implementations must be safe for concurrent use.
// The save path advances the touch timestamp through Touch, whose
// swap-and-return-previous must be atomic so processes sharing one cache
// observe each other's touches; the remaining operations are plain
// reads and writes serialized per evidence by the caller.
type TouchCache interface {
	// Get returns the cached timing for id, with ok=false on a miss.
	Get(ctx context.Context, id string) (domain.EvidenceTiming, bool, error)
	// Put stores the full timing triple for id.
	Put(ctx context.Context, id string, t domain.EvidenceTiming) error
	// Touch swaps the touched timestamp and returns the previous value.
	// ok=false means no entry existed; the caller seeds one from the DB.
	Touch(ctx context.Context, id string, ts int64) (prev int64, ok bool, err error)
	// Drop removes the entry for id.
	Drop(ctx context.Context, id string) error
}
