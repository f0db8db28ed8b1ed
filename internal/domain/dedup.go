package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RecordHash returns the content digest of an observation: SHA-256 over its
// identity and every canonical field in document order. Numbers are rounded to
// two decimals so spellings of the same reading agree. The input reference and
// any existing hash are excluded.
func RecordHash(o Observation) string {
	var b strings.Builder
	b.WriteString(o.Source)
	b.WriteByte('|')
	b.WriteString(o.StationID)
	b.WriteByte('|')
	b.WriteString(o.Timestamp.UTC().Format(time.RFC3339))
	for _, spec := range fieldSpecs {
		b.WriteByte('|')
		v, ok := o.Fields[spec.Field]
		switch {
		case !ok:
			b.WriteString("-")
		case v.IsNull():
			b.WriteString("null")
		default:
			if n, ok := v.Number(); ok {
				b.WriteString("n:")
				b.WriteString(strconv.FormatFloat(round2(n), 'f', 2, 64))
			} else {
				t, _ := v.Text()
				b.WriteString("s:")
				b.WriteString(strconv.Quote(t))
			}
		}
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func round2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0 // folds -0
	}
	return r
}

// Deduplicator drops exact content repeats within one batch. Create one per
// run; it is safe for concurrent use, but first-occurrence-wins only holds
// when records are admitted in input order.
type Deduplicator struct {
	mu   sync.Mutex
	seen map[string]string // hash → ref of the surviving record
}

// NewDeduplicator returns an empty batch-scoped deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: make(map[string]string)}
}

// Admit hashes o and reports whether it is the first occurrence. The returned
// observation carries the hash either way.
func (d *Deduplicator) Admit(o Observation) (Observation, bool) {
	hashed := o.WithHash(RecordHash(o))

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.seen[hashed.RecordHash]; dup {
		return hashed, false
	}
	d.seen[hashed.RecordHash] = o.Ref
	return hashed, true
}

// FirstRef returns the reference of the record that claimed hash.
func (d *Deduplicator) FirstRef(hash string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ref, ok := d.seen[hash]
	return ref, ok
}

// Len returns the number of distinct hashes admitted.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
