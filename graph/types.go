// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph defines the knowledge-graph element model: entities,
// relationships, claims and axioms, the tagged property-value variant they
// carry, the materialized State aggregate, and the Store port the
// versioning engine mutates and restores.
package graph

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// -----------------------------------------------------------------------------
// Element Types
// -----------------------------------------------------------------------------

// ElementType identifies the kind of a graph element.
type ElementType string

const (
	ElementTypeEntity       ElementType = "entity"
	ElementTypeRelationship ElementType = "relationship"
	ElementTypeClaim        ElementType = "claim"
	ElementTypeAxiom        ElementType = "axiom"
)

// ElementTypes lists all element types in canonical order.
var ElementTypes = []ElementType{
	ElementTypeEntity,
	ElementTypeRelationship,
	ElementTypeClaim,
	ElementTypeAxiom,
}

// String returns the string representation of the element type.
func (t ElementType) String() string {
	return string(t)
}

// Valid reports whether t is a known element type.
func (t ElementType) Valid() bool {
	switch t {
	case ElementTypeEntity, ElementTypeRelationship, ElementTypeClaim, ElementTypeAxiom:
		return true
	}
	return false
}

// -----------------------------------------------------------------------------
// Validation Errors
// -----------------------------------------------------------------------------

var (
	// ErrInvalidElement is returned when an element fails validation.
	ErrInvalidElement = errors.New("invalid element")

	// ErrUnknownElementType is returned for element types outside the known set.
	ErrUnknownElementType = errors.New("unknown element type")
)

// -----------------------------------------------------------------------------
// Property Values
// -----------------------------------------------------------------------------

// PropertyKind identifies the concrete type carried by a PropertyValue.
type PropertyKind string

const (
	PropertyString  PropertyKind = "string"
	PropertyNumber  PropertyKind = "number"
	PropertyBool    PropertyKind = "bool"
	PropertyStrings PropertyKind = "strings"
)

// PropertyValue is a tagged variant over the property types elements may
// carry. Exactly one value field is meaningful, selected by Kind. The zero
// value is "no value" and compares unequal to every populated value.
type PropertyValue struct {
	Kind PropertyKind

	Str  string
	Num  float64
	Bool bool
	List []string
}

// StringValue returns a string-kinded property value.
func StringValue(s string) PropertyValue {
	return PropertyValue{Kind: PropertyString, Str: s}
}

// NumberValue returns a number-kinded property value.
func NumberValue(n float64) PropertyValue {
	return PropertyValue{Kind: PropertyNumber, Num: n}
}

// BoolValue returns a bool-kinded property value.
func BoolValue(b bool) PropertyValue {
	return PropertyValue{Kind: PropertyBool, Bool: b}
}

// StringsValue returns a string-list-kinded property value.
func StringsValue(list ...string) PropertyValue {
	return PropertyValue{Kind: PropertyStrings, List: slices.Clone(list)}
}

// IsZero reports whether the value is unpopulated.
func (v PropertyValue) IsZero() bool {
	return v.Kind == ""
}

// Equal reports whether two property values have the same kind and content.
func (v PropertyValue) Equal(other PropertyValue) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case PropertyString:
		return v.Str == other.Str
	case PropertyNumber:
		return v.Num == other.Num
	case PropertyBool:
		return v.Bool == other.Bool
	case PropertyStrings:
		return slices.Equal(v.List, other.List)
	}
	return true
}

// Clone returns a copy that shares no mutable memory with v.
func (v PropertyValue) Clone() PropertyValue {
	out := v
	out.List = slices.Clone(v.List)
	return out
}

// String renders the value for logs and diffs.
func (v PropertyValue) String() string {
	switch v.Kind {
	case PropertyString:
		return v.Str
	case PropertyNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case PropertyBool:
		return strconv.FormatBool(v.Bool)
	case PropertyStrings:
		return "[" + strings.Join(v.List, ",") + "]"
	}
	return "<unset>"
}

// cloneProperties deep-copies a property map. Nil stays nil.
func cloneProperties(props map[string]PropertyValue) map[string]PropertyValue {
	if props == nil {
		return nil
	}
	out := make(map[string]PropertyValue, len(props))
	for k, v := range props {
		out[k] = v.Clone()
	}
	return out
}

// propertiesEqual compares two property maps by content.
func propertiesEqual(a, b map[string]PropertyValue) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		other, ok := b[k]
		if !ok || !v.Equal(other) {
			return false
		}
	}
	return true
}

// -----------------------------------------------------------------------------
// Entities
// -----------------------------------------------------------------------------

// Entity is a node in the knowledge graph.
type Entity struct {
	// ID uniquely identifies the entity across all versions.
	ID string

	// Kind is the entity class (e.g. "person", "organization").
	Kind string

	// Label is the human-readable display name.
	Label string

	// Properties holds the entity's attributes.
	Properties map[string]PropertyValue

	// CreatedAtMilli and UpdatedAtMilli are Unix milliseconds UTC.
	CreatedAtMilli int64
	UpdatedAtMilli int64
}

// Validate checks structural invariants.
func (e *Entity) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: entity ID must not be empty", ErrInvalidElement)
	}
	if e.Kind == "" {
		return fmt.Errorf("%w: entity %s has no kind", ErrInvalidElement, e.ID)
	}
	return nil
}

// Clone returns a deep copy.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	out := *e
	out.Properties = cloneProperties(e.Properties)
	return &out
}

// Equal compares all content fields.
func (e *Entity) Equal(other *Entity) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.ID == other.ID &&
		e.Kind == other.Kind &&
		e.Label == other.Label &&
		propertiesEqual(e.Properties, other.Properties)
}

// -----------------------------------------------------------------------------
// Relationships
// -----------------------------------------------------------------------------

// Relationship is a directed, labeled edge between two entities.
type Relationship struct {
	ID string

	// SourceID and TargetID reference entity IDs.
	SourceID string
	TargetID string

	// Label is the predicate (e.g. "employs", "located_in").
	Label string

	Properties map[string]PropertyValue

	CreatedAtMilli int64
}

// Validate checks structural invariants.
func (r *Relationship) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: relationship ID must not be empty", ErrInvalidElement)
	}
	if r.SourceID == "" || r.TargetID == "" {
		return fmt.Errorf("%w: relationship %s missing source or target", ErrInvalidElement, r.ID)
	}
	if r.Label == "" {
		return fmt.Errorf("%w: relationship %s has no label", ErrInvalidElement, r.ID)
	}
	return nil
}

// Clone returns a deep copy.
func (r *Relationship) Clone() *Relationship {
	if r == nil {
		return nil
	}
	out := *r
	out.Properties = cloneProperties(r.Properties)
	return &out
}

// Equal compares all content fields.
func (r *Relationship) Equal(other *Relationship) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.ID == other.ID &&
		r.SourceID == other.SourceID &&
		r.TargetID == other.TargetID &&
		r.Label == other.Label &&
		propertiesEqual(r.Properties, other.Properties)
}

// -----------------------------------------------------------------------------
// Claims
// -----------------------------------------------------------------------------

// Claim is an attributed statement about a subject element.
type Claim struct {
	ID string

	// SubjectID references the element the claim is about.
	SubjectID string

	// Predicate names the asserted attribute.
	Predicate string

	// Value is the asserted value.
	Value PropertyValue

	// Confidence is the assertion strength in [0, 1].
	Confidence float64

	// Provenance identifies where the claim came from.
	Provenance string

	CreatedAtMilli int64
}

// Validate checks structural invariants.
func (c *Claim) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: claim ID must not be empty", ErrInvalidElement)
	}
	if c.SubjectID == "" {
		return fmt.Errorf("%w: claim %s has no subject", ErrInvalidElement, c.ID)
	}
	if c.Predicate == "" {
		return fmt.Errorf("%w: claim %s has no predicate", ErrInvalidElement, c.ID)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("%w: claim %s confidence %v outside [0,1]", ErrInvalidElement, c.ID, c.Confidence)
	}
	return nil
}

// Clone returns a deep copy.
func (c *Claim) Clone() *Claim {
	if c == nil {
		return nil
	}
	out := *c
	out.Value = c.Value.Clone()
	return &out
}

// Equal compares all content fields.
func (c *Claim) Equal(other *Claim) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.ID == other.ID &&
		c.SubjectID == other.SubjectID &&
		c.Predicate == other.Predicate &&
		c.Value.Equal(other.Value) &&
		c.Confidence == other.Confidence &&
		c.Provenance == other.Provenance
}

// -----------------------------------------------------------------------------
// Axioms
// -----------------------------------------------------------------------------

// Axiom is a named rule that constrains or derives graph content.
type Axiom struct {
	ID string

	// Name is the unique human-readable rule name.
	Name string

	// Expression is the rule body in the engine's rule syntax.
	Expression string

	// Enabled controls whether the rule participates in inference.
	Enabled bool

	CreatedAtMilli int64
}

// Validate checks structural invariants.
func (a *Axiom) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("%w: axiom ID must not be empty", ErrInvalidElement)
	}
	if a.Expression == "" {
		return fmt.Errorf("%w: axiom %s has no expression", ErrInvalidElement, a.ID)
	}
	return nil
}

// Clone returns a copy.
func (a *Axiom) Clone() *Axiom {
	if a == nil {
		return nil
	}
	out := *a
	return &out
}

// Equal compares all content fields.
func (a *Axiom) Equal(other *Axiom) bool {
	if a == nil || other == nil {
		return a == other
	}
	return a.ID == other.ID &&
		a.Name == other.Name &&
		a.Expression == other.Expression &&
		a.Enabled == other.Enabled
}

// -----------------------------------------------------------------------------
// Element Union
// -----------------------------------------------------------------------------

// Element is a tagged union over the four element kinds. Exactly one payload
// pointer is non-nil, selected by Type. The zero Element is "no element".
type Element struct {
	Type ElementType

	Entity       *Entity
	Relationship *Relationship
	Claim        *Claim
	Axiom        *Axiom
}

// EntityElement wraps an entity.
func EntityElement(e *Entity) Element {
	return Element{Type: ElementTypeEntity, Entity: e}
}

// RelationshipElement wraps a relationship.
func RelationshipElement(r *Relationship) Element {
	return Element{Type: ElementTypeRelationship, Relationship: r}
}

// ClaimElement wraps a claim.
func ClaimElement(c *Claim) Element {
	return Element{Type: ElementTypeClaim, Claim: c}
}

// AxiomElement wraps an axiom.
func AxiomElement(a *Axiom) Element {
	return Element{Type: ElementTypeAxiom, Axiom: a}
}

// IsZero reports whether the element carries no payload.
func (el Element) IsZero() bool {
	return el.Type == ""
}

// ID returns the payload's element ID, or "" for the zero element.
func (el Element) ID() string {
	switch el.Type {
	case ElementTypeEntity:
		if el.Entity != nil {
			return el.Entity.ID
		}
	case ElementTypeRelationship:
		if el.Relationship != nil {
			return el.Relationship.ID
		}
	case ElementTypeClaim:
		if el.Claim != nil {
			return el.Claim.ID
		}
	case ElementTypeAxiom:
		if el.Axiom != nil {
			return el.Axiom.ID
		}
	}
	return ""
}

// Validate checks that the tag matches the populated payload and that the
// payload itself is valid.
func (el Element) Validate() error {
	switch el.Type {
	case ElementTypeEntity:
		if el.Entity == nil {
			return fmt.Errorf("%w: entity element has no payload", ErrInvalidElement)
		}
		return el.Entity.Validate()
	case ElementTypeRelationship:
		if el.Relationship == nil {
			return fmt.Errorf("%w: relationship element has no payload", ErrInvalidElement)
		}
		return el.Relationship.Validate()
	case ElementTypeClaim:
		if el.Claim == nil {
			return fmt.Errorf("%w: claim element has no payload", ErrInvalidElement)
		}
		return el.Claim.Validate()
	case ElementTypeAxiom:
		if el.Axiom == nil {
			return fmt.Errorf("%w: axiom element has no payload", ErrInvalidElement)
		}
		return el.Axiom.Validate()
	}
	return fmt.Errorf("%w: %q", ErrUnknownElementType, el.Type)
}

// Clone returns a deep copy.
func (el Element) Clone() Element {
	return Element{
		Type:         el.Type,
		Entity:       el.Entity.Clone(),
		Relationship: el.Relationship.Clone(),
		Claim:        el.Claim.Clone(),
		Axiom:        el.Axiom.Clone(),
	}
}

// Equal compares type tag and payload content.
func (el Element) Equal(other Element) bool {
	if el.Type != other.Type {
		return false
	}
	switch el.Type {
	case ElementTypeEntity:
		return el.Entity.Equal(other.Entity)
	case ElementTypeRelationship:
		return el.Relationship.Equal(other.Relationship)
	case ElementTypeClaim:
		return el.Claim.Equal(other.Claim)
	case ElementTypeAxiom:
		return el.Axiom.Equal(other.Axiom)
	}
	return true
}

// Intrinsic property names used by PropertyMap.
const (
	PropKind       = "kind"
	PropLabel      = "label"
	PropSource     = "source"
	PropTarget     = "target"
	PropSubject    = "subject"
	PropPredicate  = "predicate"
	PropValue      = "value"
	PropConfidence = "confidence"
	PropProvenance = "provenance"
	PropName       = "name"
	PropExpression = "expression"
	PropEnabled    = "enabled"
)

// PropertyMap flattens the element into named property values for
// field-level comparison: intrinsic fields under the Prop* names plus the
// explicit property map. An explicit property wins a name collision with an
// intrinsic field. Timestamps are bookkeeping and are excluded.
func (el Element) PropertyMap() map[string]PropertyValue {
	out := make(map[string]PropertyValue)
	var explicit map[string]PropertyValue

	switch el.Type {
	case ElementTypeEntity:
		if el.Entity == nil {
			return out
		}
		out[PropKind] = StringValue(el.Entity.Kind)
		out[PropLabel] = StringValue(el.Entity.Label)
		explicit = el.Entity.Properties
	case ElementTypeRelationship:
		if el.Relationship == nil {
			return out
		}
		out[PropSource] = StringValue(el.Relationship.SourceID)
		out[PropTarget] = StringValue(el.Relationship.TargetID)
		out[PropLabel] = StringValue(el.Relationship.Label)
		explicit = el.Relationship.Properties
	case ElementTypeClaim:
		if el.Claim == nil {
			return out
		}
		out[PropSubject] = StringValue(el.Claim.SubjectID)
		out[PropPredicate] = StringValue(el.Claim.Predicate)
		out[PropValue] = el.Claim.Value.Clone()
		out[PropConfidence] = NumberValue(el.Claim.Confidence)
		out[PropProvenance] = StringValue(el.Claim.Provenance)
	case ElementTypeAxiom:
		if el.Axiom == nil {
			return out
		}
		out[PropName] = StringValue(el.Axiom.Name)
		out[PropExpression] = StringValue(el.Axiom.Expression)
		out[PropEnabled] = BoolValue(el.Axiom.Enabled)
	}

	for k, v := range explicit {
		out[k] = v.Clone()
	}
	return out
}

// SetProperty writes a named property onto the element, routing intrinsic
// names back to their typed fields. The inverse of PropertyMap for merge
// application; element IDs are identity, not properties, and cannot be set.
// A zero value unsets an explicit property; intrinsic fields cannot be
// unset.
func (el Element) SetProperty(name string, v PropertyValue) error {
	setString := func(dst *string) error {
		if v.Kind != PropertyString {
			return fmt.Errorf("%w: property %q requires a string value, got %s", ErrInvalidElement, name, v.Kind)
		}
		*dst = v.Str
		return nil
	}
	setExplicit := func(props *map[string]PropertyValue) {
		if v.IsZero() {
			delete(*props, name)
			return
		}
		if *props == nil {
			*props = make(map[string]PropertyValue)
		}
		(*props)[name] = v.Clone()
	}

	if v.IsZero() {
		switch {
		case el.Type == ElementTypeEntity && el.Entity != nil && name != PropKind && name != PropLabel:
			setExplicit(&el.Entity.Properties)
			return nil
		case el.Type == ElementTypeRelationship && el.Relationship != nil &&
			name != PropSource && name != PropTarget && name != PropLabel:
			setExplicit(&el.Relationship.Properties)
			return nil
		}
		return fmt.Errorf("%w: cannot unset intrinsic property %q", ErrInvalidElement, name)
	}

	switch el.Type {
	case ElementTypeEntity:
		if el.Entity == nil {
			break
		}
		switch name {
		case PropKind:
			return setString(&el.Entity.Kind)
		case PropLabel:
			return setString(&el.Entity.Label)
		default:
			setExplicit(&el.Entity.Properties)
			return nil
		}
	case ElementTypeRelationship:
		if el.Relationship == nil {
			break
		}
		switch name {
		case PropSource:
			return setString(&el.Relationship.SourceID)
		case PropTarget:
			return setString(&el.Relationship.TargetID)
		case PropLabel:
			return setString(&el.Relationship.Label)
		default:
			setExplicit(&el.Relationship.Properties)
			return nil
		}
	case ElementTypeClaim:
		if el.Claim == nil {
			break
		}
		switch name {
		case PropSubject:
			return setString(&el.Claim.SubjectID)
		case PropPredicate:
			return setString(&el.Claim.Predicate)
		case PropValue:
			el.Claim.Value = v.Clone()
			return nil
		case PropConfidence:
			if v.Kind != PropertyNumber {
				return fmt.Errorf("%w: property %q requires a number value, got %s", ErrInvalidElement, name, v.Kind)
			}
			el.Claim.Confidence = v.Num
			return nil
		case PropProvenance:
			return setString(&el.Claim.Provenance)
		default:
			return fmt.Errorf("%w: claim has no property %q", ErrInvalidElement, name)
		}
	case ElementTypeAxiom:
		if el.Axiom == nil {
			break
		}
		switch name {
		case PropName:
			return setString(&el.Axiom.Name)
		case PropExpression:
			return setString(&el.Axiom.Expression)
		case PropEnabled:
			if v.Kind != PropertyBool {
				return fmt.Errorf("%w: property %q requires a bool value, got %s", ErrInvalidElement, name, v.Kind)
			}
			el.Axiom.Enabled = v.Bool
			return nil
		default:
			return fmt.Errorf("%w: axiom has no property %q", ErrInvalidElement, name)
		}
	}
	return fmt.Errorf("%w: element has no payload to set %q on", ErrInvalidElement, name)
}
