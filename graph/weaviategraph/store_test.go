// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package weaviategraph

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/AleutianAI/chronograph/graph"
)

// -----------------------------------------------------------------------------
// Configuration Tests
// -----------------------------------------------------------------------------

func TestWeaviateConfig(t *testing.T) {
	t.Run("defaults validate", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.NoError(t, cfg.Validate())
		assert.Equal(t, "default", cfg.GraphID)
		assert.Equal(t, 100, cfg.BatchSize)
		assert.Equal(t, 3, cfg.RetryAttempts)
	})

	t.Run("apply defaults fills zero values", func(t *testing.T) {
		cfg := Config{GraphID: "production"}
		cfg.applyDefaults()

		assert.Equal(t, "production", cfg.GraphID)
		assert.Equal(t, 100, cfg.BatchSize)
		assert.Equal(t, 3, cfg.RetryAttempts)
		assert.NotNil(t, cfg.Logger)
	})

	t.Run("rejects bad values", func(t *testing.T) {
		cases := []struct {
			name    string
			mutate  func(*Config)
			wantErr string
		}{
			{"empty graph id", func(c *Config) { c.GraphID = "" }, "graph_id"},
			{"zero batch size", func(c *Config) { c.BatchSize = 0 }, "batch_size"},
			{"negative batch size", func(c *Config) { c.BatchSize = -1 }, "batch_size"},
			{"negative retries", func(c *Config) { c.RetryAttempts = -1 }, "retry_attempts"},
			{"negative interval", func(c *Config) { c.RetryInterval = -1 }, "retry_interval"},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				cfg := DefaultConfig()
				tc.mutate(&cfg)
				err := cfg.Validate()
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
			})
		}
	})
}

// -----------------------------------------------------------------------------
// Object ID Tests
// -----------------------------------------------------------------------------

func TestElementUUID(t *testing.T) {
	s := &Store{config: Config{GraphID: "g1"}}

	t.Run("deterministic", func(t *testing.T) {
		a := s.elementUUID(graph.ElementTypeEntity, "e-1")
		b := s.elementUUID(graph.ElementTypeEntity, "e-1")
		assert.Equal(t, a, b)

		_, err := uuid.Parse(string(a))
		assert.NoError(t, err, "object ID must be a valid UUID")
	})

	t.Run("distinct per type and id", func(t *testing.T) {
		entity := s.elementUUID(graph.ElementTypeEntity, "x")
		claim := s.elementUUID(graph.ElementTypeClaim, "x")
		other := s.elementUUID(graph.ElementTypeEntity, "y")

		assert.NotEqual(t, entity, claim)
		assert.NotEqual(t, entity, other)
	})

	t.Run("distinct per graph", func(t *testing.T) {
		s2 := &Store{config: Config{GraphID: "g2"}}
		assert.NotEqual(t,
			s.elementUUID(graph.ElementTypeEntity, "e-1"),
			s2.elementUUID(graph.ElementTypeEntity, "e-1"))
	})
}

// -----------------------------------------------------------------------------
// Element Mapping Tests
// -----------------------------------------------------------------------------

// roundTrip pushes an element through the property mapping and back via a
// JSON cycle, which coerces numbers to float64 the way the server does.
func roundTrip(t *testing.T, el graph.Element) graph.Element {
	t.Helper()

	props, err := elementProperties(el, "test-graph")
	require.NoError(t, err)
	assert.Equal(t, "test-graph", props["graphId"])
	assert.Equal(t, el.ID(), props["elementId"])

	data, err := json.Marshal(props)
	require.NoError(t, err)
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))

	got, err := elementFromProperties(m)
	require.NoError(t, err)
	return got
}

func TestElementMapping(t *testing.T) {
	t.Run("entity", func(t *testing.T) {
		el := graph.EntityElement(&graph.Entity{
			ID:    "e-1",
			Kind:  "person",
			Label: "Ada Lovelace",
			Properties: map[string]graph.PropertyValue{
				"born":   graph.NumberValue(1815),
				"fields": graph.StringsValue("mathematics", "computing"),
				"active": graph.BoolValue(false),
				"note":   graph.StringValue("first programmer"),
			},
			CreatedAtMilli: 1000,
			UpdatedAtMilli: 2000,
		})

		got := roundTrip(t, el)
		assert.True(t, el.Equal(got), "round trip must preserve content")
		assert.Equal(t, int64(1000), got.Entity.CreatedAtMilli)
		assert.Equal(t, int64(2000), got.Entity.UpdatedAtMilli)
	})

	t.Run("entity without properties", func(t *testing.T) {
		el := graph.EntityElement(&graph.Entity{ID: "e-2", Kind: "place", Label: "London"})
		got := roundTrip(t, el)
		assert.True(t, el.Equal(got))
		assert.Nil(t, got.Entity.Properties)
	})

	t.Run("relationship", func(t *testing.T) {
		el := graph.RelationshipElement(&graph.Relationship{
			ID:       "r-1",
			SourceID: "e-1",
			TargetID: "e-2",
			Label:    "lived_in",
			Properties: map[string]graph.PropertyValue{
				"from": graph.NumberValue(1835),
			},
			CreatedAtMilli: 1500,
		})

		got := roundTrip(t, el)
		assert.True(t, el.Equal(got))
	})

	t.Run("claim", func(t *testing.T) {
		el := graph.ClaimElement(&graph.Claim{
			ID:             "c-1",
			SubjectID:      "e-1",
			Predicate:      "published",
			Value:          graph.StringsValue("notes", "translation"),
			Confidence:     0.9,
			Provenance:     "biography",
			CreatedAtMilli: 1700,
		})

		got := roundTrip(t, el)
		assert.True(t, el.Equal(got))
		assert.Equal(t, 0.9, got.Claim.Confidence)
	})

	t.Run("claim with zero confidence", func(t *testing.T) {
		el := graph.ClaimElement(&graph.Claim{
			ID:        "c-2",
			SubjectID: "e-1",
			Predicate: "disputed",
			Value:     graph.StringValue("unknown"),
		})
		got := roundTrip(t, el)
		assert.True(t, el.Equal(got))
	})

	t.Run("axiom", func(t *testing.T) {
		el := graph.AxiomElement(&graph.Axiom{
			ID:             "a-1",
			Name:           "acyclic-ancestry",
			Expression:     "forall x: not ancestor(x, x)",
			Enabled:        true,
			CreatedAtMilli: 1800,
		})

		got := roundTrip(t, el)
		assert.True(t, el.Equal(got))
		assert.True(t, got.Axiom.Enabled)
	})

	t.Run("unknown type rejected both ways", func(t *testing.T) {
		_, err := elementProperties(graph.Element{Type: "ghost"}, "g")
		assert.ErrorIs(t, err, graph.ErrUnknownElementType)

		_, err = elementFromProperties(map[string]interface{}{
			"elementType": "ghost",
			"elementId":   "x-1",
		})
		assert.ErrorIs(t, err, graph.ErrUnknownElementType)
	})
}

func TestPropertySidecar(t *testing.T) {
	t.Run("empty map encodes as empty string", func(t *testing.T) {
		raw, err := encodeProperties(nil)
		require.NoError(t, err)
		assert.Empty(t, raw)

		raw, err = encodeProperties(map[string]graph.PropertyValue{})
		require.NoError(t, err)
		assert.Empty(t, raw)
	})

	t.Run("zero value encodes as empty string", func(t *testing.T) {
		raw, err := encodeValue(graph.PropertyValue{})
		require.NoError(t, err)
		assert.Empty(t, raw)

		v, err := decodeValue("")
		require.NoError(t, err)
		assert.True(t, v.IsZero())
	})

	t.Run("malformed json rejected", func(t *testing.T) {
		_, err := decodeProperties("{not json")
		assert.Error(t, err)

		_, err = decodeValue("{not json")
		assert.Error(t, err)
	})

	t.Run("all kinds survive", func(t *testing.T) {
		in := map[string]graph.PropertyValue{
			"s":    graph.StringValue("text"),
			"n":    graph.NumberValue(3.25),
			"b":    graph.BoolValue(true),
			"list": graph.StringsValue("a", "b"),
		}
		raw, err := encodeProperties(in)
		require.NoError(t, err)

		out, err := decodeProperties(raw)
		require.NoError(t, err)
		require.Len(t, out, 4)
		for k, v := range in {
			assert.True(t, v.Equal(out[k]), "property %q changed in transit", k)
		}
	})
}

// -----------------------------------------------------------------------------
// Response Parsing Tests
// -----------------------------------------------------------------------------

func TestParseElements(t *testing.T) {
	t.Run("parses get payload", func(t *testing.T) {
		resp := &models.GraphQLResponse{
			Data: map[string]models.JSONObject{
				"Get": map[string]interface{}{
					ElementClassName: []interface{}{
						map[string]interface{}{
							"elementType":    "entity",
							"elementId":      "e-1",
							"kind":           "person",
							"label":          "Ada",
							"createdAtMilli": float64(1000),
						},
						map[string]interface{}{
							"elementType":    "axiom",
							"elementId":      "a-1",
							"name":           "rule",
							"expression":     "x > 0",
							"enabled":        true,
							"createdAtMilli": float64(2000),
						},
					},
				},
			},
		}

		elements, err := parseElements(resp)
		require.NoError(t, err)
		require.Len(t, elements, 2)
		assert.Equal(t, graph.ElementTypeEntity, elements[0].Type)
		assert.Equal(t, "Ada", elements[0].Entity.Label)
		assert.Equal(t, graph.ElementTypeAxiom, elements[1].Type)
		assert.True(t, elements[1].Axiom.Enabled)
	})

	t.Run("empty payload yields no elements", func(t *testing.T) {
		elements, err := parseElements(&models.GraphQLResponse{})
		require.NoError(t, err)
		assert.Empty(t, elements)
	})

	t.Run("malformed rows skipped", func(t *testing.T) {
		resp := &models.GraphQLResponse{
			Data: map[string]models.JSONObject{
				"Get": map[string]interface{}{
					ElementClassName: []interface{}{
						"not an object",
						map[string]interface{}{
							"elementType": "entity",
							"elementId":   "e-1",
							"kind":        "person",
						},
					},
				},
			},
		}

		elements, err := parseElements(resp)
		require.NoError(t, err)
		require.Len(t, elements, 1)
		assert.Equal(t, "e-1", elements[0].ID())
	})
}

func TestParseAggregateCount(t *testing.T) {
	t.Run("reads meta count", func(t *testing.T) {
		resp := &models.GraphQLResponse{
			Data: map[string]models.JSONObject{
				"Aggregate": map[string]interface{}{
					ElementClassName: []interface{}{
						map[string]interface{}{
							"meta": map[string]interface{}{"count": float64(42)},
						},
					},
				},
			},
		}
		assert.Equal(t, 42, parseAggregateCount(resp))
	})

	t.Run("missing levels mean zero", func(t *testing.T) {
		assert.Equal(t, 0, parseAggregateCount(&models.GraphQLResponse{}))

		resp := &models.GraphQLResponse{
			Data: map[string]models.JSONObject{
				"Aggregate": map[string]interface{}{
					ElementClassName: []interface{}{},
				},
			},
		}
		assert.Equal(t, 0, parseAggregateCount(resp))
	})
}

// -----------------------------------------------------------------------------
// Schema Tests
// -----------------------------------------------------------------------------

func TestElementSchema(t *testing.T) {
	schema := GetElementSchema()

	assert.Equal(t, ElementClassName, schema.Class)
	assert.Equal(t, "none", schema.Vectorizer, "the mirror does not vectorize")

	names := make(map[string]bool, len(schema.Properties))
	for _, p := range schema.Properties {
		names[p.Name] = true
	}

	// Every queried field must exist in the schema, plus the isolation key.
	for _, f := range elementFields() {
		assert.True(t, names[f.Name], "schema is missing queried field %q", f.Name)
	}
	assert.True(t, names["graphId"])
}
