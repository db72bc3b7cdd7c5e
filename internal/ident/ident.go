// Package ident classifies record identifiers into committed server ids and
// pending client-minted placeholders. Offline clients mint placeholder ids
// before a record ever reaches the server; everything downstream of the wire
// boundary works with the classified Ref instead of re-inspecting the raw
// string, so the placeholder naming convention lives in exactly one place.
package ident

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// State tags a Ref as server-committed or client-pending.
type State int

const (
	// StatePending marks a client-minted placeholder that has not been
	// replaced by a committed id yet. It is the zero State so a zero Ref
	// never passes for a committed id.
	StatePending State = iota
	// StateCommitted marks an identifier minted by the server.
	StateCommitted
)

// Ref is a classified record identifier. Construct one with Classify,
// Committed, or Pending; the zero Ref is a pending empty id.
type Ref struct {
	raw   string
	state State
}

// pendingPrefixes are the placeholder shapes clients are known to mint.
// Classification happens only here; callers branch on Ref.IsCommitted.
var pendingPrefixes = []string{"tmp-", "unsynced-"}

// Classify inspects a raw identifier from the wire or the store and tags it.
// Empty ids and ids carrying a known placeholder prefix are pending,
// everything else is committed.
func Classify(raw string) Ref {
	if raw == "" {
		return Ref{raw: raw, state: StatePending}
	}
	for _, p := range pendingPrefixes {
		if strings.HasPrefix(raw, p) {
			return Ref{raw: raw, state: StatePending}
		}
	}
	return Ref{raw: raw, state: StateCommitted}
}

// Committed wraps an id that is known to be server-minted, skipping
// classification. Use it for ids the server itself produced.
func Committed(raw string) Ref {
	return Ref{raw: raw, state: StateCommitted}
}

// Pending wraps a raw placeholder id without re-checking its shape.
func Pending(raw string) Ref {
	return Ref{raw: raw, state: StatePending}
}

func (r Ref) String() string { return r.raw }

func (r Ref) IsCommitted() bool { return r.state == StateCommitted }

func (r Ref) IsPending() bool { return r.state == StatePending }

// NewID mints a committed identifier with the given prefix. Prefixes must not
// collide with pendingPrefixes.
func NewID(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}
