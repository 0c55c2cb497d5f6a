package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// auditEntryTag domain-separates audit-entry preimages from any other use
// of SHA-256 in this package, following the tagged-hash idiom the teacher
// used for its Merkle leaves/nodes (one prefix byte before hashing),
// adapted here to SHA-256 single-entry chaining instead of a tree.
const auditEntryTag = 0x01

// ChainEntry computes entry's EntryHash given the previous entry's hash
// (prevHashHex is the genesis all-zero hash for the first entry in a
// patient's history) and returns entry with PrevHash/EntryHash populated.
func ChainEntry(prevHashHex string, entry AuditEntry) AuditEntry {
	entry.PrevHash = prevHashHex
	entry.EntryHash = hashEntry(prevHashHex, entry)
	return entry
}

// GenesisHash is the all-zero 32-byte hash used as PrevHash for the first
// audit entry in a patient's history.
func GenesisHash() string { return zeroHashHex() }

// VerifyChain recomputes the hash chain over log and reports whether it
// is intact — i.e. every entry's EntryHash matches a recomputation from
// its fields and the preceding entry's hash, starting from GenesisHash.
// A mismatch anywhere indicates a tampered or reordered audit log.
func VerifyChain(log []AuditEntry) error {
	prev := GenesisHash()
	for i, e := range log {
		if e.PrevHash != prev {
			return fmt.Errorf("ledger: audit chain broken at entry %d: prev_hash mismatch", i)
		}
		want := hashEntry(prev, AuditEntry{
			Event:     e.Event,
			Timestamp: e.Timestamp,
			Requester: e.Requester,
			Priority:  e.Priority,
			Threshold: e.Threshold,
			Version:   e.Version,
		})
		if e.EntryHash != want {
			return fmt.Errorf("ledger: audit chain broken at entry %d: entry_hash mismatch", i)
		}
		prev = e.EntryHash
	}
	return nil
}

func hashEntry(prevHashHex string, e AuditEntry) string {
	h := sha256.New()
	h.Write([]byte{auditEntryTag})
	h.Write([]byte(prevHashHex))
	h.Write([]byte(e.Event))
	fmt.Fprintf(h, "|%f|%s|%s|%d|%d", e.Timestamp, e.Requester, e.Priority, e.Threshold, e.Version)
	return hex.EncodeToString(h.Sum(nil))
}
