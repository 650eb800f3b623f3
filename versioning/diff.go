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
	"fmt"

	"github.com/AleutianAI/chronograph/graph"
)

// diffStates computes the element deltas that transform from into to.
//
// Description:
//
//	Elements present only in to become creates, elements present only in
//	from become deletes, elements in both whose content differs become
//	updates. Timestamp-only differences are not changes (Element.Equal
//	ignores them). Deltas come back in canonical element order, so the
//	same two states always diff identically.
func diffStates(from, to *graph.State) ([]*Delta, error) {
	if from == nil || to == nil {
		return nil, graph.ErrNilState
	}

	var deltas []*Delta

	for _, el := range to.Elements() {
		old, ok := from.Lookup(el.Type, el.ID())
		if !ok {
			newVal, err := EncodeElement(el)
			if err != nil {
				return nil, fmt.Errorf("encode %s %s: %w", el.Type, el.ID(), err)
			}
			deltas = append(deltas, &Delta{
				ElementType: el.Type,
				ElementID:   el.ID(),
				ChangeType:  ChangeCreate,
				NewValue:    newVal,
			})
			continue
		}
		if old.Equal(el) {
			continue
		}

		oldVal, err := EncodeElement(old)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", old.Type, old.ID(), err)
		}
		newVal, err := EncodeElement(el)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", el.Type, el.ID(), err)
		}
		deltas = append(deltas, &Delta{
			ElementType: el.Type,
			ElementID:   el.ID(),
			ChangeType:  ChangeUpdate,
			OldValue:    oldVal,
			NewValue:    newVal,
		})
	}

	for _, el := range from.Elements() {
		if _, ok := to.Lookup(el.Type, el.ID()); ok {
			continue
		}
		oldVal, err := EncodeElement(el)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", el.Type, el.ID(), err)
		}
		deltas = append(deltas, &Delta{
			ElementType: el.Type,
			ElementID:   el.ID(),
			ChangeType:  ChangeDelete,
			OldValue:    oldVal,
		})
	}

	return deltas, nil
}

// applyDelta mutates st per a single delta.
func applyDelta(st *graph.State, d *Delta) error {
	switch d.ChangeType {
	case ChangeCreate, ChangeUpdate:
		el, err := d.DecodeNew()
		if err != nil {
			return fmt.Errorf("decode delta %s/%s: %w", d.ElementType, d.ElementID, err)
		}
		return st.Apply(el)
	case ChangeDelete:
		st.Remove(d.ElementType, d.ElementID)
		return nil
	default:
		return fmt.Errorf("unknown change type %q", d.ChangeType)
	}
}

// applyDeltas replays deltas in order onto st.
func applyDeltas(st *graph.State, deltas []*Delta) error {
	for _, d := range deltas {
		if err := applyDelta(st, d); err != nil {
			return err
		}
	}
	return nil
}

// applyDeltasReverse un-applies deltas: each is inverted, and the batch
// replays in reverse order so interdependent changes unwind cleanly.
func applyDeltasReverse(st *graph.State, deltas []*Delta) error {
	for i := len(deltas) - 1; i >= 0; i-- {
		inv := deltas[i].Invert()
		if err := applyDelta(st, &inv); err != nil {
			return err
		}
	}
	return nil
}

// statsForDeltas tallies change counts by element type.
func statsForDeltas(deltas []*Delta) ChangeStats {
	var stats ChangeStats
	for _, d := range deltas {
		stats.Add(d.ElementType, d.ChangeType)
	}
	return stats
}
