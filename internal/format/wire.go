// Package format implements the two on-disk changelog layouts over a
// storage.Backend: the basic one-file-per-entry format (C7) and the
// batched manifest+blob format (C8). Both encode entries with
// msgpack — a self-describing, typed, binary-safe codec — satisfying
// spec 6's "typed blob tags... raw bytes for binary columns" wire
// requirement directly.
package format

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/zerovault/zerovault/internal/changelog"
	"github.com/zerovault/zerovault/internal/zverrors"
)

// EncodeEntry serializes a single changelog entry.
func EncodeEntry(e changelog.Entry) ([]byte, error) {
	buf, err := msgpack.Marshal(&e)
	if err != nil {
		return nil, zverrors.New(zverrors.Serialization, "encode entry", err)
	}
	return buf, nil
}

// DecodeEntry deserializes a single changelog entry.
func DecodeEntry(data []byte) (changelog.Entry, error) {
	var e changelog.Entry
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return changelog.Entry{}, zverrors.New(zverrors.Serialization, "decode entry", err)
	}
	return e, nil
}

// EncodeEntries serializes a batch blob's full array of entries.
func EncodeEntries(entries []changelog.Entry) ([]byte, error) {
	buf, err := msgpack.Marshal(entries)
	if err != nil {
		return nil, zverrors.New(zverrors.Serialization, "encode entries", err)
	}
	return buf, nil
}

// DecodeEntries deserializes a batch blob.
func DecodeEntries(data []byte) ([]changelog.Entry, error) {
	var entries []changelog.Entry
	if err := msgpack.Unmarshal(data, &entries); err != nil {
		return nil, zverrors.New(zverrors.Serialization, "decode entries", err)
	}
	return entries, nil
}

// EncodeManifest serializes a per-author change_id -> batch_id map.
func EncodeManifest(m map[string]string) ([]byte, error) {
	buf, err := msgpack.Marshal(m)
	if err != nil {
		return nil, zverrors.New(zverrors.Serialization, "encode manifest", err)
	}
	return buf, nil
}

// DecodeManifest deserializes a manifest.
func DecodeManifest(data []byte) (map[string]string, error) {
	m := make(map[string]string)
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, zverrors.New(zverrors.Serialization, "decode manifest", err)
	}
	return m, nil
}
