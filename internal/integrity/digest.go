// Package integrity computes deterministic digests over record payloads and whole
// entity collections. Digests detect corruption of a change in transit and serve as a
// cheap pre-filter before record-level diffing during a full sync.
//
// A payload digest covers the JSON document, not its bytes. Payloads travel as
// json.RawMessage and encoding/json rewrites them on marshal (compaction, \u003c-style escapes for
// '<', '>' and '&'), so byte-exact digests would not survive the wire. Verify therefore
// accepts any encoding that decodes to the same canonical document:
//
//   - insignificant whitespace and object key order;
//   - escaped and literal spellings of the same string ("\u0061" and "a");
//   - NFC and NFD forms of the same text;
//   - duplicate object keys, where the last value wins as in encoding/json;
//   - invalid UTF-8 in strings, which decodes to U+FFFD.
//
// Any change of a value, a key or a number literal (1 and 1.0 differ) fails Verify.
// Payloads that are not valid JSON are digested byte for byte.
package integrity

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/crypto/blake2b"
)

// Domain prefixes keep payload and collection digests from colliding with each other.
// The version suffix leaves room for an algorithm migration.
const (
	DomainPayload    = "handsync/payload/v1"
	DomainCollection = "handsync/collection/v1"
)

// ErrChecksumMismatch indicates that a payload does not match the checksum it travels with.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// ErrEmptyChecksum indicates a record that carries no checksum at all.
var ErrEmptyChecksum = errors.New("checksum is empty")

// hashWithDomain считает BLAKE2b-256 от domain + 0x00 + data.
// Нулевой байт убирает неоднозначность на границе domain/data.
func hashWithDomain(domain string, data []byte) string {
	buf := make([]byte, 0, len(domain)+1+len(data))
	buf = append(buf, domain...)
	buf = append(buf, 0x00)
	buf = append(buf, data...)

	sum := blake2b.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

// Digest returns the checksum of a payload.
// JSON payloads are digested in canonical form, so two devices serializing the same
// document with different key order or whitespace agree on the checksum. Anything
// that is not valid JSON is digested byte for byte. An empty payload (delete) has a
// fixed digest.
func Digest(payload []byte) string {
	if len(payload) == 0 {
		return hashWithDomain(DomainPayload, nil)
	}

	data := payload
	if canonical, err := Canonicalize(payload); err == nil {
		data = canonical
	}

	return hashWithDomain(DomainPayload, data)
}

// Verify checks that payload matches checksum.
func Verify(payload []byte, checksum string) error {
	if checksum == "" {
		return ErrEmptyChecksum
	}

	if actual := Digest(payload); actual != checksum {
		return fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, short(checksum), short(actual))
	}

	return nil
}

// CollectionDigest returns a digest over a whole entity collection given as
// entityID -> record checksum. Order of the map does not matter.
// Both the engine and the remote store compute it from record checksums, so a remote
// that only sees sealed payloads still produces a comparable value.
func CollectionDigest(checksums map[string]string) string {
	ids := make([]string, 0, len(checksums))
	for id := range checksums {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var buf []byte
	for _, id := range ids {
		buf = append(buf, id...)
		buf = append(buf, 0x00)
		buf = append(buf, checksums[id]...)
		buf = append(buf, '\n')
	}

	return hashWithDomain(DomainCollection, buf)
}

func short(checksum string) string {
	if len(checksum) > 12 {
		return checksum[:12]
	}
	return checksum
}
