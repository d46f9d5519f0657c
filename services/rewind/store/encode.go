// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Every stored value begins with a one-byte scheme marker so the physical
// layout can evolve without rewriting old rows. Scheme 0 is raw JSON;
// scheme 1 is zlib-compressed JSON. Unknown schemes fail decoding rather
// than guessing.
const (
	schemeRaw  byte = 0x00
	schemeZlib byte = 0x01

	// CompressMinBytes is the smallest payload worth compressing. Small
	// records (sessions, version pointers) stay raw for cheap decodes;
	// snapshot blobs above this size compress well.
	CompressMinBytes = 1024
)

// ErrMalformedRecord reports a stored value that cannot be decoded.
var ErrMalformedRecord = errors.New("malformed storage record")

// marshalRecord serializes a record to its framed storage form.
func marshalRecord(record interface{}) ([]byte, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return encodeValue(payload)
}

// unmarshalRecord reverses marshalRecord into out.
func unmarshalRecord(value []byte, out interface{}) error {
	payload, err := decodeValue(value)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return nil
}

func encodeValue(payload []byte) ([]byte, error) {
	if len(payload) < CompressMinBytes {
		return append([]byte{schemeRaw}, payload...), nil
	}

	var buf bytes.Buffer
	buf.WriteByte(schemeZlib)
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, fmt.Errorf("compress record: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress record: %w", err)
	}

	// Incompressible content (already-compressed blobs) stays raw.
	if buf.Len() >= len(payload)+1 {
		return append([]byte{schemeRaw}, payload...), nil
	}
	return buf.Bytes(), nil
}

func decodeValue(value []byte) ([]byte, error) {
	if len(value) == 0 {
		return nil, fmt.Errorf("%w: empty value", ErrMalformedRecord)
	}

	switch value[0] {
	case schemeRaw:
		out := make([]byte, len(value)-1)
		copy(out, value[1:])
		return out, nil

	case schemeZlib:
		zr, err := zlib.NewReader(bytes.NewReader(value[1:]))
		if err != nil {
			return nil, fmt.Errorf("%w: open zlib stream: %v", ErrMalformedRecord, err)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("%w: inflate: %v", ErrMalformedRecord, err)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: unknown scheme 0x%02x", ErrMalformedRecord, value[0])
	}
}
