package domain

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
	"time"
)

// Fingerprint is the hex-encoded SHA-256 digest summarizing exactly
// which inputs produced an evaluation: every latest-per-key signal
// identity and value, the weight profile version, and the rule catalog
// version. Two evaluations with equal fingerprints are guaranteed
// bit-identical; staleness detection is a fingerprint comparison.
type Fingerprint string

// Short returns a truncated form for log fields.
func (f Fingerprint) Short() string {
	if len(f) <= 12 {
		return string(f)
	}
	return string(f[:12])
}

// ComputeFingerprint hashes the evaluation inputs canonically. The
// signal slice may arrive in any order; it is sorted by key (and never
// mutated) before hashing so the digest depends only on content. Each
// field is length-prefixed, so client-supplied values cannot shift
// bytes between fields no matter what they contain.
func ComputeFingerprint(latest []StoredSignal, profile WeightProfile, catalogVersion string) Fingerprint {
	sorted := make([]StoredSignal, len(latest))
	copy(sorted, latest)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Key().Less(sorted[j].Key())
	})

	h := sha256.New()
	writeField := func(s string) {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(s)))
		h.Write(n[:])
		h.Write([]byte(s))
	}

	writeField(profile.Role)
	writeField(profile.Version)
	writeField(catalogVersion)

	for _, s := range sorted {
		writeField(string(s.Phase))
		writeField(s.Metric)
		writeField(s.RawValue)
		writeField(s.Unit)
		writeField(s.ProducedAt.UTC().Format(time.RFC3339Nano))
		writeField(s.SourceVersion)
	}

	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}
