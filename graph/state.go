// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"slices"
	"strconv"
)

// -----------------------------------------------------------------------------
// Counts
// -----------------------------------------------------------------------------

// Counts holds per-kind element totals.
type Counts struct {
	Entities      int
	Relationships int
	Claims        int
	Axioms        int
}

// Total returns the sum across all kinds.
func (c Counts) Total() int {
	return c.Entities + c.Relationships + c.Claims + c.Axioms
}

// -----------------------------------------------------------------------------
// State
// -----------------------------------------------------------------------------

// State is a full materialized graph: every element keyed by ID.
//
// Description:
//
//	A State is a plain value with no internal locking. The versioning
//	engine treats reconstructed states as immutable once built; callers
//	that need a mutable copy take Clone(). All four maps are always
//	non-nil on a State built through NewState.
//
// Thread Safety:
//
//	NOT safe for concurrent mutation. Concurrent reads are safe once the
//	state stops changing.
type State struct {
	Entities      map[string]*Entity
	Relationships map[string]*Relationship
	Claims        map[string]*Claim
	Axioms        map[string]*Axiom
}

// NewState returns an empty state.
func NewState() *State {
	return &State{
		Entities:      make(map[string]*Entity),
		Relationships: make(map[string]*Relationship),
		Claims:        make(map[string]*Claim),
		Axioms:        make(map[string]*Axiom),
	}
}

// Clone returns a deep copy sharing no mutable memory with s.
func (s *State) Clone() *State {
	out := NewState()
	for id, e := range s.Entities {
		out.Entities[id] = e.Clone()
	}
	for id, r := range s.Relationships {
		out.Relationships[id] = r.Clone()
	}
	for id, c := range s.Claims {
		out.Claims[id] = c.Clone()
	}
	for id, a := range s.Axioms {
		out.Axioms[id] = a.Clone()
	}
	return out
}

// Counts returns per-kind element totals.
func (s *State) Counts() Counts {
	return Counts{
		Entities:      len(s.Entities),
		Relationships: len(s.Relationships),
		Claims:        len(s.Claims),
		Axioms:        len(s.Axioms),
	}
}

// Len returns the total element count.
func (s *State) Len() int {
	return s.Counts().Total()
}

// Lookup returns the element of the given type and ID, if present.
func (s *State) Lookup(t ElementType, id string) (Element, bool) {
	switch t {
	case ElementTypeEntity:
		if e, ok := s.Entities[id]; ok {
			return EntityElement(e), true
		}
	case ElementTypeRelationship:
		if r, ok := s.Relationships[id]; ok {
			return RelationshipElement(r), true
		}
	case ElementTypeClaim:
		if c, ok := s.Claims[id]; ok {
			return ClaimElement(c), true
		}
	case ElementTypeAxiom:
		if a, ok := s.Axioms[id]; ok {
			return AxiomElement(a), true
		}
	}
	return Element{}, false
}

// Apply upserts an element into the state. The element is validated first
// and stored as-is (no defensive copy; call Clone on the element if the
// caller retains it).
func (s *State) Apply(el Element) error {
	if err := el.Validate(); err != nil {
		return err
	}
	switch el.Type {
	case ElementTypeEntity:
		s.Entities[el.Entity.ID] = el.Entity
	case ElementTypeRelationship:
		s.Relationships[el.Relationship.ID] = el.Relationship
	case ElementTypeClaim:
		s.Claims[el.Claim.ID] = el.Claim
	case ElementTypeAxiom:
		s.Axioms[el.Axiom.ID] = el.Axiom
	}
	return nil
}

// Remove deletes the element of the given type and ID. Returns false when
// the element was not present.
func (s *State) Remove(t ElementType, id string) bool {
	switch t {
	case ElementTypeEntity:
		if _, ok := s.Entities[id]; ok {
			delete(s.Entities, id)
			return true
		}
	case ElementTypeRelationship:
		if _, ok := s.Relationships[id]; ok {
			delete(s.Relationships, id)
			return true
		}
	case ElementTypeClaim:
		if _, ok := s.Claims[id]; ok {
			delete(s.Claims, id)
			return true
		}
	case ElementTypeAxiom:
		if _, ok := s.Axioms[id]; ok {
			delete(s.Axioms, id)
			return true
		}
	}
	return false
}

// Elements returns every element in canonical order: kind order per
// ElementTypes, IDs sorted within each kind. The returned elements share
// memory with the state.
func (s *State) Elements() []Element {
	out := make([]Element, 0, s.Len())
	for _, id := range sortedKeys(s.Entities) {
		out = append(out, EntityElement(s.Entities[id]))
	}
	for _, id := range sortedKeys(s.Relationships) {
		out = append(out, RelationshipElement(s.Relationships[id]))
	}
	for _, id := range sortedKeys(s.Claims) {
		out = append(out, ClaimElement(s.Claims[id]))
	}
	for _, id := range sortedKeys(s.Axioms) {
		out = append(out, AxiomElement(s.Axioms[id]))
	}
	return out
}

// Equal compares two states by content.
func (s *State) Equal(other *State) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.Counts() != other.Counts() {
		return false
	}
	for id, e := range s.Entities {
		if !e.Equal(other.Entities[id]) {
			return false
		}
	}
	for id, r := range s.Relationships {
		if !r.Equal(other.Relationships[id]) {
			return false
		}
	}
	for id, c := range s.Claims {
		if !c.Equal(other.Claims[id]) {
			return false
		}
	}
	for id, a := range s.Axioms {
		if !a.Equal(other.Axioms[id]) {
			return false
		}
	}
	return true
}

// -----------------------------------------------------------------------------
// Content Checksum
// -----------------------------------------------------------------------------

// Checksum returns the SHA-256 hex digest of the state's canonical byte
// form. Two states with equal content always produce the same digest
// regardless of map iteration order or timestamps' insertion history.
func (s *State) Checksum() string {
	h := sha256.New()
	for _, el := range s.Elements() {
		writeCanonicalElement(h, el)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// writeCanonicalElement writes a deterministic byte form of one element.
// Field order is fixed and property keys are sorted, so the stream never
// depends on map iteration order.
func writeCanonicalElement(w io.Writer, el Element) {
	writeCanonicalString(w, string(el.Type))
	writeCanonicalString(w, el.ID())
	props := el.PropertyMap()
	keys := sortedKeys(props)
	for _, k := range keys {
		writeCanonicalString(w, k)
		writeCanonicalValue(w, props[k])
	}
}

func writeCanonicalString(w io.Writer, s string) {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(s)))
	w.Write(lenBuf[:])
	io.WriteString(w, s)
}

func writeCanonicalValue(w io.Writer, v PropertyValue) {
	writeCanonicalString(w, string(v.Kind))
	switch v.Kind {
	case PropertyString:
		writeCanonicalString(w, v.Str)
	case PropertyNumber:
		writeCanonicalString(w, strconv.FormatFloat(v.Num, 'g', -1, 64))
	case PropertyBool:
		writeCanonicalString(w, strconv.FormatBool(v.Bool))
	case PropertyStrings:
		writeCanonicalString(w, strconv.Itoa(len(v.List)))
		for _, item := range v.List {
			writeCanonicalString(w, item)
		}
	}
}

// sortedKeys returns the map's keys in ascending order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Summary renders a one-line description for logs.
func (s *State) Summary() string {
	c := s.Counts()
	return fmt.Sprintf("entities=%d relationships=%d claims=%d axioms=%d",
		c.Entities, c.Relationships, c.Claims, c.Axioms)
}
