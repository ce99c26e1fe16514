package cache

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint identifies the inputs of a mining call. Equal inputs always
// produce equal fingerprints; the format version is part of the hash so a
// code upgrade invalidates every prior entry.
type Fingerprint struct {
	Topic string
	Sum   uint64
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("%s:%016x", f.Topic, f.Sum)
}

// FingerprintBuilder accumulates the mining inputs in a canonical order.
// Collections are sorted before hashing so map iteration order never leaks
// into the fingerprint.
type FingerprintBuilder struct {
	topic  string
	digest *xxhash.Digest
}

// NewFingerprint starts a fingerprint for a cache topic.
func NewFingerprint(topic string, formatVersion int) *FingerprintBuilder {
	b := &FingerprintBuilder{topic: topic, digest: xxhash.New()}
	b.String(topic)
	b.Int64(int64(formatVersion))
	return b
}

// Int64 feeds an integer.
func (b *FingerprintBuilder) Int64(v int64) *FingerprintBuilder {
	fmt.Fprintf(b.digest, "%d|", v)
	return b
}

// String feeds a string.
func (b *FingerprintBuilder) String(s string) *FingerprintBuilder {
	b.digest.WriteString(s)
	b.digest.WriteString("|")
	return b
}

// Time feeds a timestamp at second precision, matching the upstream keys.
func (b *FingerprintBuilder) Time(t time.Time) *FingerprintBuilder {
	return b.Int64(t.UTC().Unix())
}

// Strings feeds a collection order-independently.
func (b *FingerprintBuilder) Strings(vals []string) *FingerprintBuilder {
	sorted := make([]string, len(vals))
	copy(sorted, vals)
	sort.Strings(sorted)
	return b.String(strings.Join(sorted, ","))
}

// Int64s feeds an integer collection order-independently.
func (b *FingerprintBuilder) Int64s(vals []int64) *FingerprintBuilder {
	sorted := make([]int64, len(vals))
	copy(sorted, vals)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for _, v := range sorted {
		b.Int64(v)
	}
	return b.String(";")
}

// Map feeds a string map order-independently; used for release-match rules.
func (b *FingerprintBuilder) Map(m map[string]string) *FingerprintBuilder {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.String(k)
		b.String(m[k])
	}
	return b.String(";")
}

// Done finalizes the fingerprint.
func (b *FingerprintBuilder) Done() Fingerprint {
	return Fingerprint{Topic: b.topic, Sum: b.digest.Sum64()}
}
