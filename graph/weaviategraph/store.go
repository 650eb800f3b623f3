// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package weaviategraph mirrors the live knowledge graph into Weaviate.
//
// The store implements graph.Store on one flat Weaviate class, one object
// per element, scoped by a graph isolation key so several graphs can share
// an instance. Deterministic object IDs turn every batch write into an
// upsert, and all calls retry transient failures with a constant backoff.
package weaviategraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/AleutianAI/chronograph/graph"
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config configures the Weaviate-backed store.
type Config struct {
	// URL is the Weaviate server URL (e.g. "http://localhost:8080").
	// Required by New; ignored by NewWithClient.
	URL string

	// GraphID isolates this store's objects from other graphs sharing
	// the same Weaviate instance.
	// Default: "default"
	GraphID string

	// BatchSize is the number of objects per batch write and per export
	// page.
	// Default: 100
	BatchSize int

	// RetryAttempts is the number of retries after a failed call.
	// Default: 3
	RetryAttempts int

	// RetryInterval is the pause between retries.
	// Default: 50ms
	RetryInterval time.Duration

	// Logger for store operations.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults for a local Weaviate.
func DefaultConfig() Config {
	return Config{
		GraphID:       "default",
		BatchSize:     100,
		RetryAttempts: 3,
		RetryInterval: 50 * time.Millisecond,
		Logger:        slog.Default(),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.GraphID == "" {
		return errors.New("graph_id must not be empty")
	}
	if c.BatchSize < 1 {
		return errors.New("batch_size must be positive")
	}
	if c.RetryAttempts < 0 {
		return errors.New("retry_attempts must be non-negative")
	}
	if c.RetryInterval < 0 {
		return errors.New("retry_interval must be non-negative")
	}
	return nil
}

// applyDefaults fills in zero values with defaults.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.GraphID == "" {
		c.GraphID = defaults.GraphID
	}
	if c.BatchSize == 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = defaults.RetryAttempts
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = defaults.RetryInterval
	}
	if c.Logger == nil {
		c.Logger = defaults.Logger
	}
}

// -----------------------------------------------------------------------------
// Store
// -----------------------------------------------------------------------------

// Store is a graph.Store backed by a Weaviate class.
//
// Thread Safety:
//
//	Safe for concurrent use; all state lives in Weaviate. Replace is not
//	atomic over HTTP: a reader outside the versioning engine may observe
//	the cleared graph before the rewrite lands. The engine serializes
//	mirror writes, so this only affects out-of-band readers.
type Store struct {
	client *weaviate.Client
	config Config
	logger *slog.Logger
}

// New connects to Weaviate and returns a ready store.
//
// Description:
//
//	Parses the URL, creates the underlying client and ensures the
//	element class exists.
//
// Inputs:
//
//	ctx - Context for schema initialization. Must not be nil.
//	cfg - Store configuration. URL is required.
//
// Outputs:
//
//	*Store - Ready-to-use store.
//	error - Non-nil if the configuration is invalid or the schema
//	cannot be ensured.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if ctx == nil {
		return nil, graph.ErrNilContext
	}
	if cfg.URL == "" {
		return nil, errors.New("url must not be empty")
	}

	wcfg := weaviate.Config{
		Host:   cfg.URL,
		Scheme: "http",
	}
	switch {
	case strings.HasPrefix(cfg.URL, "https://"):
		wcfg.Scheme = "https"
		wcfg.Host = strings.TrimPrefix(cfg.URL, "https://")
	case strings.HasPrefix(cfg.URL, "http://"):
		wcfg.Host = strings.TrimPrefix(cfg.URL, "http://")
	}

	client, err := weaviate.NewClient(wcfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	return NewWithClient(ctx, client, cfg)
}

// NewWithClient returns a store over an existing Weaviate client.
//
// Inputs:
//
//	ctx - Context for schema initialization. Must not be nil.
//	client - Weaviate client. Must not be nil.
//	cfg - Store configuration. URL is ignored.
//
// Outputs:
//
//	*Store - Ready-to-use store.
//	error - Non-nil if the configuration is invalid or the schema
//	cannot be ensured.
func NewWithClient(ctx context.Context, client *weaviate.Client, cfg Config) (*Store, error) {
	if ctx == nil {
		return nil, graph.ErrNilContext
	}
	if client == nil {
		return nil, errors.New("client must not be nil")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Store{
		client: client,
		config: cfg,
		logger: cfg.Logger.With(
			slog.String("component", "weaviate_graph"),
			slog.String("graph_id", cfg.GraphID)),
	}
	if err := EnsureSchema(ctx, client, s.logger); err != nil {
		return nil, err
	}
	return s, nil
}

// Client returns the underlying Weaviate client for direct operations.
func (s *Store) Client() *weaviate.Client {
	return s.client
}

// GraphID returns the store's graph isolation key.
func (s *Store) GraphID() string {
	return s.config.GraphID
}

// -----------------------------------------------------------------------------
// graph.Store Implementation
// -----------------------------------------------------------------------------

// Get returns the element of the given type and ID.
func (s *Store) Get(ctx context.Context, t graph.ElementType, id string) (graph.Element, error) {
	if ctx == nil {
		return graph.Element{}, graph.ErrNilContext
	}
	if !t.Valid() {
		return graph.Element{}, fmt.Errorf("%w: %q", graph.ErrUnknownElementType, t)
	}

	where := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			s.graphFilter(),
			filters.Where().
				WithPath([]string{"elementType"}).
				WithOperator(filters.Equal).
				WithValueString(string(t)),
			filters.Where().
				WithPath([]string{"elementId"}).
				WithOperator(filters.Equal).
				WithValueString(id),
		})

	var result *models.GraphQLResponse
	err := s.retry(ctx, func() error {
		resp, err := s.client.GraphQL().Get().
			WithClassName(ElementClassName).
			WithFields(elementFields()...).
			WithWhere(where).
			WithLimit(1).
			Do(ctx)
		if err != nil {
			return err
		}
		if resp.Errors != nil && len(resp.Errors) > 0 {
			return backoff.Permanent(fmt.Errorf("query error: %s", resp.Errors[0].Message))
		}
		result = resp
		return nil
	})
	if err != nil {
		return graph.Element{}, fmt.Errorf("get %s %s: %w", t, id, err)
	}

	elements, err := parseElements(result)
	if err != nil {
		return graph.Element{}, err
	}
	if len(elements) == 0 {
		return graph.Element{}, fmt.Errorf("%w: %s %s", graph.ErrElementNotFound, t, id)
	}
	return elements[0], nil
}

// Put upserts an element.
func (s *Store) Put(ctx context.Context, el graph.Element) error {
	if ctx == nil {
		return graph.ErrNilContext
	}
	if err := el.Validate(); err != nil {
		return err
	}

	props, err := elementProperties(el, s.config.GraphID)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", el.Type, el.ID(), err)
	}

	obj := &models.Object{
		Class:      ElementClassName,
		ID:         s.elementUUID(el.Type, el.ID()),
		Properties: props,
	}
	if err := s.writeObjects(ctx, []*models.Object{obj}); err != nil {
		return fmt.Errorf("put %s %s: %w", el.Type, el.ID(), err)
	}

	s.logger.Debug("mirrored element",
		slog.String("type", el.Type.String()),
		slog.String("id", el.ID()))
	return nil
}

// Delete removes an element.
func (s *Store) Delete(ctx context.Context, t graph.ElementType, id string) error {
	if ctx == nil {
		return graph.ErrNilContext
	}
	if !t.Valid() {
		return fmt.Errorf("%w: %q", graph.ErrUnknownElementType, t)
	}

	where := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			s.graphFilter(),
			filters.Where().
				WithPath([]string{"elementType"}).
				WithOperator(filters.Equal).
				WithValueString(string(t)),
			filters.Where().
				WithPath([]string{"elementId"}).
				WithOperator(filters.Equal).
				WithValueString(id),
		})

	var resp *models.BatchDeleteResponse
	err := s.retry(ctx, func() error {
		r, err := s.client.Batch().ObjectsBatchDeleter().
			WithClassName(ElementClassName).
			WithWhere(where).
			WithOutput("minimal").
			Do(ctx)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", t, id, err)
	}

	if resp == nil || resp.Results == nil || resp.Results.Matches == 0 {
		return fmt.Errorf("%w: %s %s", graph.ErrElementNotFound, t, id)
	}
	if resp.Results.Failed > 0 {
		return fmt.Errorf("delete %s %s: %d deletions failed", t, id, resp.Results.Failed)
	}

	s.logger.Debug("removed mirrored element",
		slog.String("type", t.String()),
		slog.String("id", id))
	return nil
}

// Export materializes the full mirrored graph into a State.
func (s *Store) Export(ctx context.Context) (*graph.State, error) {
	if ctx == nil {
		return nil, graph.ErrNilContext
	}

	st := graph.NewState()
	offset := 0
	for {
		var result *models.GraphQLResponse
		err := s.retry(ctx, func() error {
			resp, err := s.client.GraphQL().Get().
				WithClassName(ElementClassName).
				WithFields(elementFields()...).
				WithWhere(s.graphFilter()).
				WithLimit(s.config.BatchSize).
				WithOffset(offset).
				Do(ctx)
			if err != nil {
				return err
			}
			if resp.Errors != nil && len(resp.Errors) > 0 {
				return backoff.Permanent(fmt.Errorf("query error: %s", resp.Errors[0].Message))
			}
			result = resp
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("export page at offset %d: %w", offset, err)
		}

		elements, err := parseElements(result)
		if err != nil {
			return nil, fmt.Errorf("export: %w", err)
		}
		for _, el := range elements {
			if err := st.Apply(el); err != nil {
				return nil, fmt.Errorf("export: %w", err)
			}
		}

		if len(elements) < s.config.BatchSize {
			break
		}
		offset += len(elements)
	}

	return st, nil
}

// Replace swaps the mirrored graph content for the given state.
//
// Description:
//
//	Clears every object carrying this store's graph ID, then batch
//	writes the new state. Not atomic: see the Store doc comment.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	st - Replacement state. Must not be nil.
//
// Outputs:
//
//	error - Non-nil if the clear or the rewrite fails.
func (s *Store) Replace(ctx context.Context, st *graph.State) error {
	if ctx == nil {
		return graph.ErrNilContext
	}
	if st == nil {
		return graph.ErrNilState
	}

	if err := s.clearGraph(ctx); err != nil {
		return err
	}

	elements := st.Elements()
	objects := make([]*models.Object, 0, len(elements))
	for _, el := range elements {
		props, err := elementProperties(el, s.config.GraphID)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", el.Type, el.ID(), err)
		}
		objects = append(objects, &models.Object{
			Class:      ElementClassName,
			ID:         s.elementUUID(el.Type, el.ID()),
			Properties: props,
		})
	}
	if err := s.writeObjects(ctx, objects); err != nil {
		return fmt.Errorf("replace: %w", err)
	}

	s.logger.Info("replaced mirrored graph", slog.Int("elements", len(objects)))
	return nil
}

// Count returns per-kind element totals.
func (s *Store) Count(ctx context.Context) (graph.Counts, error) {
	if ctx == nil {
		return graph.Counts{}, graph.ErrNilContext
	}

	var counts graph.Counts
	for _, t := range graph.ElementTypes {
		n, err := s.countType(ctx, t)
		if err != nil {
			return graph.Counts{}, err
		}
		switch t {
		case graph.ElementTypeEntity:
			counts.Entities = n
		case graph.ElementTypeRelationship:
			counts.Relationships = n
		case graph.ElementTypeClaim:
			counts.Claims = n
		case graph.ElementTypeAxiom:
			counts.Axioms = n
		}
	}
	return counts, nil
}

// -----------------------------------------------------------------------------
// Internal Methods
// -----------------------------------------------------------------------------

// retry runs op with the store's constant-backoff policy. Context errors
// stop the retry loop immediately.
func (s *Store) retry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewConstantBackOff(s.config.RetryInterval),
			uint64(s.config.RetryAttempts)),
		ctx)

	return backoff.Retry(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		return op()
	}, policy)
}

// writeObjects batch-writes objects in BatchSize chunks. Deterministic IDs
// make re-writes of existing objects plain overwrites.
func (s *Store) writeObjects(ctx context.Context, objects []*models.Object) error {
	for start := 0; start < len(objects); start += s.config.BatchSize {
		end := start + s.config.BatchSize
		if end > len(objects) {
			end = len(objects)
		}
		chunk := objects[start:end]

		var result []models.ObjectsGetResponse
		err := s.retry(ctx, func() error {
			resp, err := s.client.Batch().ObjectsBatcher().WithObjects(chunk...).Do(ctx)
			if err != nil {
				return err
			}
			result = resp
			return nil
		})
		if err != nil {
			return fmt.Errorf("batch write: %w", err)
		}

		for _, obj := range result {
			if obj.Result != nil && obj.Result.Errors != nil && len(obj.Result.Errors.Error) > 0 {
				return fmt.Errorf("batch write rejected: %s", obj.Result.Errors.Error[0].Message)
			}
		}
	}
	return nil
}

// clearGraph batch-deletes every object carrying this store's graph ID.
// The server caps deletions per call, so it loops until nothing matches.
func (s *Store) clearGraph(ctx context.Context) error {
	for {
		var resp *models.BatchDeleteResponse
		err := s.retry(ctx, func() error {
			r, err := s.client.Batch().ObjectsBatchDeleter().
				WithClassName(ElementClassName).
				WithWhere(s.graphFilter()).
				WithOutput("minimal").
				Do(ctx)
			if err != nil {
				return err
			}
			resp = r
			return nil
		})
		if err != nil {
			return fmt.Errorf("clear graph: %w", err)
		}

		if resp == nil || resp.Results == nil || resp.Results.Matches == 0 {
			return nil
		}
		if resp.Results.Failed > 0 {
			return fmt.Errorf("clear graph: %d deletions failed", resp.Results.Failed)
		}
		if resp.Results.Successful == 0 {
			return fmt.Errorf("clear graph: no progress, %d objects still match", resp.Results.Matches)
		}
	}
}

// countType runs a meta count aggregate for one element type.
func (s *Store) countType(ctx context.Context, t graph.ElementType) (int, error) {
	where := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			s.graphFilter(),
			filters.Where().
				WithPath([]string{"elementType"}).
				WithOperator(filters.Equal).
				WithValueString(string(t)),
		})

	var result *models.GraphQLResponse
	err := s.retry(ctx, func() error {
		resp, err := s.client.GraphQL().Aggregate().
			WithClassName(ElementClassName).
			WithWhere(where).
			WithFields(graphql.Field{
				Name: "meta",
				Fields: []graphql.Field{
					{Name: "count"},
				},
			}).
			Do(ctx)
		if err != nil {
			return err
		}
		if resp.Errors != nil && len(resp.Errors) > 0 {
			return backoff.Permanent(fmt.Errorf("aggregate error: %s", resp.Errors[0].Message))
		}
		result = resp
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", t, err)
	}

	return parseAggregateCount(result), nil
}

// graphFilter scopes a query to this store's graph.
func (s *Store) graphFilter() *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{"graphId"}).
		WithOperator(filters.Equal).
		WithValueString(s.config.GraphID)
}

// elementUUID derives the Weaviate object ID from the graph, type and
// element ID.
func (s *Store) elementUUID(t graph.ElementType, id string) strfmt.UUID {
	seed := fmt.Sprintf("chronograph://%s/%s/%s", s.config.GraphID, t, id)
	return strfmt.UUID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(seed)).String())
}

// -----------------------------------------------------------------------------
// Element Mapping
// -----------------------------------------------------------------------------

// wireValue is the JSON form of a property value inside the properties and
// value side-car fields.
type wireValue struct {
	Kind string   `json:"kind"`
	Str  string   `json:"str,omitempty"`
	Num  float64  `json:"num,omitempty"`
	Bool bool     `json:"bool,omitempty"`
	List []string `json:"list,omitempty"`
}

func encodeWireValue(v graph.PropertyValue) wireValue {
	return wireValue{
		Kind: string(v.Kind),
		Str:  v.Str,
		Num:  v.Num,
		Bool: v.Bool,
		List: v.List,
	}
}

func decodeWireValue(w wireValue) graph.PropertyValue {
	return graph.PropertyValue{
		Kind: graph.PropertyKind(w.Kind),
		Str:  w.Str,
		Num:  w.Num,
		Bool: w.Bool,
		List: w.List,
	}
}

// encodeProperties renders a property map as JSON. Empty maps render as "".
func encodeProperties(props map[string]graph.PropertyValue) (string, error) {
	if len(props) == 0 {
		return "", nil
	}
	wire := make(map[string]wireValue, len(props))
	for k, v := range props {
		wire[k] = encodeWireValue(v)
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("encode properties: %w", err)
	}
	return string(data), nil
}

// decodeProperties parses the JSON property side-car. "" means no
// properties.
func decodeProperties(raw string) (map[string]graph.PropertyValue, error) {
	if raw == "" {
		return nil, nil
	}
	var wire map[string]wireValue
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("decode properties: %w", err)
	}
	props := make(map[string]graph.PropertyValue, len(wire))
	for k, w := range wire {
		props[k] = decodeWireValue(w)
	}
	return props, nil
}

// encodeValue renders a single property value as JSON. Zero values render
// as "".
func encodeValue(v graph.PropertyValue) (string, error) {
	if v.IsZero() {
		return "", nil
	}
	data, err := json.Marshal(encodeWireValue(v))
	if err != nil {
		return "", fmt.Errorf("encode value: %w", err)
	}
	return string(data), nil
}

// decodeValue parses a single JSON property value. "" means no value.
func decodeValue(raw string) (graph.PropertyValue, error) {
	if raw == "" {
		return graph.PropertyValue{}, nil
	}
	var w wireValue
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return graph.PropertyValue{}, fmt.Errorf("decode value: %w", err)
	}
	return decodeWireValue(w), nil
}

// elementProperties flattens an element into the Weaviate property map.
func elementProperties(el graph.Element, graphID string) (map[string]interface{}, error) {
	props := map[string]interface{}{
		"elementId":   el.ID(),
		"elementType": string(el.Type),
		"graphId":     graphID,
	}

	switch el.Type {
	case graph.ElementTypeEntity:
		e := el.Entity
		explicit, err := encodeProperties(e.Properties)
		if err != nil {
			return nil, err
		}
		props["kind"] = e.Kind
		props["label"] = e.Label
		props["properties"] = explicit
		props["createdAtMilli"] = e.CreatedAtMilli
		props["updatedAtMilli"] = e.UpdatedAtMilli

	case graph.ElementTypeRelationship:
		r := el.Relationship
		explicit, err := encodeProperties(r.Properties)
		if err != nil {
			return nil, err
		}
		props["sourceId"] = r.SourceID
		props["targetId"] = r.TargetID
		props["label"] = r.Label
		props["properties"] = explicit
		props["createdAtMilli"] = r.CreatedAtMilli

	case graph.ElementTypeClaim:
		c := el.Claim
		value, err := encodeValue(c.Value)
		if err != nil {
			return nil, err
		}
		props["subjectId"] = c.SubjectID
		props["predicate"] = c.Predicate
		props["value"] = value
		props["confidence"] = c.Confidence
		props["provenance"] = c.Provenance
		props["createdAtMilli"] = c.CreatedAtMilli

	case graph.ElementTypeAxiom:
		a := el.Axiom
		props["name"] = a.Name
		props["expression"] = a.Expression
		props["enabled"] = a.Enabled
		props["createdAtMilli"] = a.CreatedAtMilli

	default:
		return nil, fmt.Errorf("%w: %q", graph.ErrUnknownElementType, el.Type)
	}

	return props, nil
}

// elementFromProperties rebuilds an element from a Weaviate result object.
func elementFromProperties(m map[string]interface{}) (graph.Element, error) {
	t := graph.ElementType(getString(m, "elementType"))
	id := getString(m, "elementId")

	switch t {
	case graph.ElementTypeEntity:
		explicit, err := decodeProperties(getString(m, "properties"))
		if err != nil {
			return graph.Element{}, fmt.Errorf("entity %s: %w", id, err)
		}
		return graph.EntityElement(&graph.Entity{
			ID:             id,
			Kind:           getString(m, "kind"),
			Label:          getString(m, "label"),
			Properties:     explicit,
			CreatedAtMilli: getInt64(m, "createdAtMilli"),
			UpdatedAtMilli: getInt64(m, "updatedAtMilli"),
		}), nil

	case graph.ElementTypeRelationship:
		explicit, err := decodeProperties(getString(m, "properties"))
		if err != nil {
			return graph.Element{}, fmt.Errorf("relationship %s: %w", id, err)
		}
		return graph.RelationshipElement(&graph.Relationship{
			ID:             id,
			SourceID:       getString(m, "sourceId"),
			TargetID:       getString(m, "targetId"),
			Label:          getString(m, "label"),
			Properties:     explicit,
			CreatedAtMilli: getInt64(m, "createdAtMilli"),
		}), nil

	case graph.ElementTypeClaim:
		value, err := decodeValue(getString(m, "value"))
		if err != nil {
			return graph.Element{}, fmt.Errorf("claim %s: %w", id, err)
		}
		return graph.ClaimElement(&graph.Claim{
			ID:             id,
			SubjectID:      getString(m, "subjectId"),
			Predicate:      getString(m, "predicate"),
			Value:          value,
			Confidence:     getFloat64(m, "confidence"),
			Provenance:     getString(m, "provenance"),
			CreatedAtMilli: getInt64(m, "createdAtMilli"),
		}), nil

	case graph.ElementTypeAxiom:
		return graph.AxiomElement(&graph.Axiom{
			ID:             id,
			Name:           getString(m, "name"),
			Expression:     getString(m, "expression"),
			Enabled:        getBool(m, "enabled"),
			CreatedAtMilli: getInt64(m, "createdAtMilli"),
		}), nil
	}

	return graph.Element{}, fmt.Errorf("%w: %q", graph.ErrUnknownElementType, t)
}

// elementFields returns the fields to query.
func elementFields() []graphql.Field {
	return []graphql.Field{
		{Name: "elementId"},
		{Name: "elementType"},
		{Name: "kind"},
		{Name: "label"},
		{Name: "sourceId"},
		{Name: "targetId"},
		{Name: "subjectId"},
		{Name: "predicate"},
		{Name: "value"},
		{Name: "confidence"},
		{Name: "provenance"},
		{Name: "name"},
		{Name: "expression"},
		{Name: "enabled"},
		{Name: "properties"},
		{Name: "createdAtMilli"},
		{Name: "updatedAtMilli"},
	}
}

// parseElements converts a GraphQL Get response into elements.
func parseElements(result *models.GraphQLResponse) ([]graph.Element, error) {
	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	objects, ok := data[ElementClassName].([]interface{})
	if !ok {
		return nil, nil
	}

	out := make([]graph.Element, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue // skip malformed objects
		}
		el, err := elementFromProperties(m)
		if err != nil {
			return nil, err
		}
		out = append(out, el)
	}
	return out, nil
}

// parseAggregateCount walks an aggregate response down to meta.count.
// Missing levels mean zero matching objects.
func parseAggregateCount(result *models.GraphQLResponse) int {
	agg, ok := result.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0
	}
	rows, ok := agg[ElementClassName].([]interface{})
	if !ok || len(rows) == 0 {
		return 0
	}
	row, ok := rows[0].(map[string]interface{})
	if !ok {
		return 0
	}
	meta, ok := row["meta"].(map[string]interface{})
	if !ok {
		return 0
	}
	count, ok := meta["count"].(float64)
	if !ok {
		return 0
	}
	return int(count)
}

// getString safely extracts a string from a result object.
func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// getFloat64 safely extracts a float64 from a result object.
func getFloat64(m map[string]interface{}, key string) float64 {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case float32:
			return float64(n)
		case int:
			return float64(n)
		}
	}
	return 0
}

// getInt64 safely extracts an int64 from a result object. GraphQL numbers
// arrive as float64.
func getInt64(m map[string]interface{}, key string) int64 {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case float64:
			return int64(n)
		case int64:
			return n
		case int:
			return int64(n)
		}
	}
	return 0
}

// getBool safely extracts a bool from a result object.
func getBool(m map[string]interface{}, key string) bool {
	if v, ok := m[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Compile-time Interface Check
// -----------------------------------------------------------------------------

var _ graph.Store = (*Store)(nil)
