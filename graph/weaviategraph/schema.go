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
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// ElementClassName is the Weaviate class holding mirrored graph elements.
const ElementClassName = "ChronographElement"

// GetElementSchema returns the Weaviate schema for the element class.
//
// Description:
//
//	One flat class carries all four element kinds. Fields that do not
//	apply to a kind stay empty. The explicit property map and claim
//	values are tagged variants with no native Weaviate representation,
//	so they travel as JSON text in the properties and value fields.
//	Vectorization is off: the mirror serves filtered lookups and full
//	exports, not semantic search.
//
// Outputs:
//
//	*models.Class - The Weaviate class definition
func GetElementSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	indexSearchable := new(bool)
	*indexSearchable = true

	return &models.Class{
		Class:       ElementClassName,
		Description: "Live mirror of chronograph knowledge-graph elements",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:            "elementId",
				DataType:        []string{"text"},
				Description:     "Element ID, unique within its type",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "elementType",
				DataType:        []string{"text"},
				Description:     "Element kind: entity, relationship, claim, axiom",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "graphId",
				DataType:        []string{"text"},
				Description:     "Graph isolation key",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "kind",
				DataType:        []string{"text"},
				Description:     "Entity class (entities only)",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "label",
				DataType:        []string{"text"},
				Description:     "Display name of entities and relationships",
				IndexSearchable: indexSearchable,
				Tokenization:    "word",
			},
			{
				Name:            "sourceId",
				DataType:        []string{"text"},
				Description:     "Source entity ID (relationships only)",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "targetId",
				DataType:        []string{"text"},
				Description:     "Target entity ID (relationships only)",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "subjectId",
				DataType:        []string{"text"},
				Description:     "Subject element ID (claims only)",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "predicate",
				DataType:        []string{"text"},
				Description:     "Asserted attribute name (claims only)",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "value",
				DataType:     []string{"text"},
				Description:  "Asserted value as JSON (claims only)",
				Tokenization: "word",
			},
			{
				Name:        "confidence",
				DataType:    []string{"number"},
				Description: "Assertion strength in [0,1] (claims only)",
			},
			{
				Name:            "provenance",
				DataType:        []string{"text"},
				Description:     "Claim origin (claims only)",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "name",
				DataType:        []string{"text"},
				Description:     "Rule name (axioms only)",
				IndexSearchable: indexSearchable,
				Tokenization:    "word",
			},
			{
				Name:         "expression",
				DataType:     []string{"text"},
				Description:  "Rule body (axioms only)",
				Tokenization: "word",
			},
			{
				Name:        "enabled",
				DataType:    []string{"boolean"},
				Description: "Whether the rule participates in inference (axioms only)",
			},
			{
				Name:         "properties",
				DataType:     []string{"text"},
				Description:  "Explicit property map as JSON (entities and relationships)",
				Tokenization: "word",
			},
			{
				Name:        "createdAtMilli",
				DataType:    []string{"int"},
				Description: "Creation time, Unix milliseconds UTC",
			},
			{
				Name:        "updatedAtMilli",
				DataType:    []string{"int"},
				Description: "Last update time, Unix milliseconds UTC (entities only)",
			},
		},
	}
}

// EnsureSchema creates the element class if it doesn't exist.
//
// Description:
//
//	Checks whether the element class exists in Weaviate and creates it
//	if not. This operation is idempotent.
//
// Inputs:
//
//	ctx - Context for cancellation
//	client - Weaviate client
//	logger - Logger for schema lifecycle messages
//
// Outputs:
//
//	error - Non-nil if schema creation fails
func EnsureSchema(ctx context.Context, client *weaviate.Client, logger *slog.Logger) error {
	schema := GetElementSchema()

	_, err := client.Schema().ClassGetter().WithClassName(ElementClassName).Do(ctx)
	if err == nil {
		logger.Debug("element schema already exists", slog.String("class", ElementClassName))
		return nil
	}

	logger.Info("creating element schema", slog.String("class", ElementClassName))
	if err := client.Schema().ClassCreator().WithClass(schema).Do(ctx); err != nil {
		return fmt.Errorf("creating element schema: %w", err)
	}

	return nil
}

// DeleteSchema removes the element class and every mirrored object.
//
// Description:
//
//	Drops the whole class, not just one graph's objects. Use
//	Store.Replace with an empty state to clear a single graph.
//
// Inputs:
//
//	ctx - Context for cancellation
//	client - Weaviate client
//
// Outputs:
//
//	error - Non-nil if deletion fails
func DeleteSchema(ctx context.Context, client *weaviate.Client) error {
	if err := client.Schema().ClassDeleter().WithClassName(ElementClassName).Do(ctx); err != nil {
		return fmt.Errorf("deleting element schema: %w", err)
	}
	return nil
}
