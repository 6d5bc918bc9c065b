// Deterministic client order identifiers for retry-safe submission.
package clientid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// DefaultBucketSeconds is the width of the time bucket identifiers are pinned
// to. Retrying a submission within the same bucket reuses the same id, so the
// venue deduplicates it.
const DefaultBucketSeconds = 60

// hashLen is the number of hex characters kept from the digest.
const hashLen = 16

// Generator derives short deterministic ids from normalized order fields.
// The zero value uses DefaultBucketSeconds.
type Generator struct {
	BucketSeconds int64
}

// Generate returns the client id for the given order parameters.
//
// Strategy, venue and side are lowercased, the symbol uppercased; the
// timestamp is floored into the generator's bucket. When nonce is empty it
// defaults to the concatenation of the normalized fields and bucket, so
// identical inputs inside one bucket always collapse to the same id. Any
// differing field, nonce, or a bucket boundary crossing yields a new id.
func (g Generator) Generate(strategy, venue, symbol, side string, ts time.Time, nonce string) string {
	bucketSize := g.BucketSeconds
	if bucketSize <= 0 {
		bucketSize = DefaultBucketSeconds
	}

	strategy = strings.ToLower(strings.TrimSpace(strategy))
	venue = strings.ToLower(strings.TrimSpace(venue))
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	side = strings.ToLower(strings.TrimSpace(side))
	bucket := ts.Unix() / bucketSize

	if nonce == "" {
		nonce = strings.Join([]string{strategy, venue, symbol, side, fmt.Sprintf("%d", bucket)}, "")
	}

	payload := strings.Join([]string{
		strategy, venue, symbol, side, fmt.Sprintf("%d", bucket), nonce,
	}, "|")
	sum := sha256.Sum256([]byte(payload))
	return fmt.Sprintf("%x-%s", bucket, hex.EncodeToString(sum[:])[:hashLen])
}
