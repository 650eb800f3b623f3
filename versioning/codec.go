// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package versioning

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"hash/crc32"

	"github.com/AleutianAI/chronograph/graph"
)

// -----------------------------------------------------------------------------
// Record Framing
// -----------------------------------------------------------------------------

// Ledger records are framed as [4-byte CRC32][gob data]. The CRC covers the
// gob bytes and is verified on every read, so silent at-rest corruption
// surfaces as ErrCorruptRecord instead of a garbage decode.

// encodeRecord gob-encodes rec and prepends its CRC32.
func encodeRecord(rec any) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}

	crc := crc32.ChecksumIEEE(buf.Bytes())

	result := make([]byte, 4+buf.Len())
	binary.BigEndian.PutUint32(result[:4], crc)
	copy(result[4:], buf.Bytes())

	return result, nil
}

// decodeRecord verifies the CRC32 frame and gob-decodes into out.
func decodeRecord(data []byte, out any) error {
	if len(data) < 5 { // 4-byte CRC + at least 1 byte data
		return fmt.Errorf("%w: record too short", ErrCorruptRecord)
	}

	storedCRC := binary.BigEndian.Uint32(data[:4])
	gobData := data[4:]
	computedCRC := crc32.ChecksumIEEE(gobData)

	if storedCRC != computedCRC {
		return fmt.Errorf("%w: stored=%08x computed=%08x", ErrCorruptRecord, storedCRC, computedCRC)
	}

	dec := gob.NewDecoder(bytes.NewReader(gobData))
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("gob decode: %w", err)
	}

	return nil
}

// -----------------------------------------------------------------------------
// Element Payloads
// -----------------------------------------------------------------------------

// elementSchemaVersion is bumped whenever the element payload layout
// changes incompatibly. Decoders reject versions they do not know.
const elementSchemaVersion = 1

// EncodeElement serializes an element as a delta payload:
// [1-byte schema version][gob element].
//
// Description:
//
//	Payloads are opaque to the ledger and decoded lazily per element
//	(see Delta.DecodeOld/DecodeNew), so history scans only pay decode
//	cost for the elements they actually inspect.
func EncodeElement(el graph.Element) ([]byte, error) {
	if err := el.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteByte(elementSchemaVersion)
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(el); err != nil {
		return nil, fmt.Errorf("gob encode element: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeElement deserializes an element payload produced by EncodeElement.
func DecodeElement(data []byte) (graph.Element, error) {
	if len(data) < 2 {
		return graph.Element{}, fmt.Errorf("%w: element payload too short", ErrCorruptRecord)
	}
	if data[0] != elementSchemaVersion {
		return graph.Element{}, fmt.Errorf("%w: unknown element schema version %d", ErrCorruptRecord, data[0])
	}

	var el graph.Element
	dec := gob.NewDecoder(bytes.NewReader(data[1:]))
	if err := dec.Decode(&el); err != nil {
		return graph.Element{}, fmt.Errorf("gob decode element: %w", err)
	}

	return el, nil
}

// -----------------------------------------------------------------------------
// State Payloads
// -----------------------------------------------------------------------------

// statePayload is the snapshot wire form: sorted slices instead of maps so
// the encoding is deterministic for a given state content.
type statePayload struct {
	SchemaVersion int

	Entities      []*graph.Entity
	Relationships []*graph.Relationship
	Claims        []*graph.Claim
	Axioms        []*graph.Axiom
}

const stateSchemaVersion = 1

// encodeState serializes a full state for snapshot storage.
func encodeState(st *graph.State) ([]byte, error) {
	payload := statePayload{SchemaVersion: stateSchemaVersion}
	for _, el := range st.Elements() {
		switch el.Type {
		case graph.ElementTypeEntity:
			payload.Entities = append(payload.Entities, el.Entity)
		case graph.ElementTypeRelationship:
			payload.Relationships = append(payload.Relationships, el.Relationship)
		case graph.ElementTypeClaim:
			payload.Claims = append(payload.Claims, el.Claim)
		case graph.ElementTypeAxiom:
			payload.Axioms = append(payload.Axioms, el.Axiom)
		}
	}

	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("gob encode state: %w", err)
	}

	return buf.Bytes(), nil
}

// decodeState deserializes a snapshot payload back into a state.
func decodeState(data []byte) (*graph.State, error) {
	var payload statePayload
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("gob decode state: %w", err)
	}
	if payload.SchemaVersion != stateSchemaVersion {
		return nil, fmt.Errorf("%w: unknown state schema version %d", ErrCorruptRecord, payload.SchemaVersion)
	}

	st := graph.NewState()
	for _, e := range payload.Entities {
		st.Entities[e.ID] = e
	}
	for _, r := range payload.Relationships {
		st.Relationships[r.ID] = r
	}
	for _, c := range payload.Claims {
		st.Claims[c.ID] = c
	}
	for _, a := range payload.Axioms {
		st.Axioms[a.ID] = a
	}

	return st, nil
}
