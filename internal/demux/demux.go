// Package demux reassembles flat, alias-prefixed result rows into
// nested entity values: it filters each request's columns out of the
// row set, expands column paths into nested objects, hydrates them
// against entity metadata, and collapses rows multiplied by
// one-to-many joins back into single logical entities.
package demux

import (
	"fmt"
	"reflect"
	"strings"

	"graphload/internal/dbexec"
	"graphload/internal/planner"
	"graphload/schema"
)

// RawRow is one flat result row keyed by projection alias. Consumed
// entirely during demultiplexing.
type RawRow = map[string]any

// Entity is a hydrated entity value: scalar columns plus nested
// relation objects ([]Entity for to-many relations).
type Entity = map[string]any

// ScanRows drains a result set into raw rows, one map entry per
// planned column, in planner column order.
func ScanRows(rows dbexec.Rows, cols []planner.ScanColumn) ([]RawRow, error) {
	var out []RawRow
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(RawRow, len(cols))
		for i, col := range cols {
			row[col.Alias] = convertValue(values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// One demultiplexes the rows belonging to alias into a single entity.
// The boolean reports whether any row matched; zero matching rows is
// absence, not an error.
func One(rows []RawRow, cols []planner.ScanColumn, alias, entityName string, reg *schema.Registry) (Entity, bool, error) {
	entities, err := Many(rows, cols, alias, entityName, reg)
	if err != nil {
		return nil, false, err
	}
	if len(entities) == 0 {
		return nil, false, nil
	}
	return entities[0], true, nil
}

// Many demultiplexes the rows belonging to alias into deduplicated
// entities, preserving first-seen order. Rows that repeat a logical
// entity (one-to-many explosion) collapse into one entity, with
// to-many relation rows accumulated into its lists.
func Many(rows []RawRow, cols []planner.ScanColumn, alias, entityName string, reg *schema.Registry) ([]Entity, error) {
	entity, ok := reg.Lookup(entityName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", planner.ErrUnknownEntity, entityName)
	}

	requestCols := columnsForAlias(cols, alias)
	c := &collector{reg: reg}
	for _, row := range rows {
		nested, matched := expandRow(row, requestCols, alias)
		if !matched {
			continue
		}
		c.add(hydrate(nested, entity, reg), entity)
	}
	return c.entities, nil
}

// columnsForAlias keeps the scan columns owned by one request. With
// per-request statements every column qualifies; with a merged
// statement this is the demultiplexing step proper.
func columnsForAlias(cols []planner.ScanColumn, alias string) []planner.ScanColumn {
	out := make([]planner.ScanColumn, 0, len(cols))
	for _, col := range cols {
		if col.Alias == alias || strings.HasPrefix(col.Alias, alias+"_") {
			out = append(out, col)
		}
	}
	return out
}

// expandRow turns one flat row into a nested object following each
// column's recorded path. A row whose every value is nil represents the
// unmatched side of an outer join and contributes no entity.
func expandRow(row RawRow, cols []planner.ScanColumn, alias string) (map[string]any, bool) {
	matched := false
	nested := make(map[string]any)
	for _, col := range cols {
		value, ok := row[col.Alias]
		if !ok {
			continue
		}
		if value != nil {
			matched = true
		}
		setPath(nested, col.Path, value)
	}
	return nested, matched
}

func setPath(obj map[string]any, path []string, value any) {
	for i, segment := range path {
		if i == len(path)-1 {
			obj[segment] = value
			return
		}
		child, ok := obj[segment].(map[string]any)
		if !ok {
			child = make(map[string]any)
			obj[segment] = child
		}
		obj = child
	}
}

// hydrate builds a typed entity from a nested plain object: scalar
// columns declared in metadata are copied, relation sub-objects recurse
// into the target entity, everything else is dropped. A relation whose
// joined columns are all nil hydrates to absent.
func hydrate(nested map[string]any, entity schema.Entity, reg *schema.Registry) Entity {
	out := make(Entity)
	for _, col := range entity.Columns {
		if value, ok := nested[col.Name]; ok {
			out[col.Name] = value
		}
	}
	for _, rel := range entity.Relations {
		raw, ok := nested[rel.Name]
		if !ok {
			continue
		}
		sub, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		target, ok := reg.Lookup(rel.Target)
		if !ok {
			continue
		}
		if allNil(sub) {
			if rel.ToMany {
				out[rel.Name] = []Entity{}
			} else {
				out[rel.Name] = nil
			}
			continue
		}
		child := hydrate(sub, target, reg)
		if rel.ToMany {
			out[rel.Name] = []Entity{child}
		} else {
			out[rel.Name] = child
		}
	}
	return out
}

func allNil(obj map[string]any) bool {
	for _, value := range obj {
		switch v := value.(type) {
		case map[string]any:
			if !allNil(v) {
				return false
			}
		case nil:
		default:
			return false
		}
	}
	return true
}

// collector deduplicates hydrated entities in first-seen order. When
// the entity declares a primary key, identity is its key tuple and
// repeated rows merge their to-many relation lists; otherwise identity
// falls back to deep structural equality.
type collector struct {
	reg      *schema.Registry
	entities []Entity
	byKey    map[string]Entity
}

func (c *collector) add(candidate Entity, entity schema.Entity) {
	key, ok := identityKey(candidate, entity)
	if !ok {
		for _, existing := range c.entities {
			if reflect.DeepEqual(existing, candidate) {
				return
			}
		}
		c.entities = append(c.entities, candidate)
		return
	}

	if c.byKey == nil {
		c.byKey = make(map[string]Entity)
	}
	if existing, seen := c.byKey[key]; seen {
		mergeEntity(existing, candidate, entity, c.reg)
		return
	}
	c.byKey[key] = candidate
	c.entities = append(c.entities, candidate)
}

func identityKey(candidate Entity, entity schema.Entity) (string, bool) {
	pks := entity.PrimaryKeyColumns()
	if len(pks) == 0 {
		return "", false
	}
	parts := make([]string, len(pks))
	for i, col := range pks {
		value, ok := candidate[col.Name]
		if !ok || value == nil {
			return "", false
		}
		parts[i] = fmt.Sprint(value)
	}
	return strings.Join(parts, "|"), true
}

// mergeEntity folds a repeated row of the same logical entity into the
// first-seen one: to-many relation elements are appended (deduplicated
// recursively), to-one relations merge in place.
func mergeEntity(dst, src Entity, entity schema.Entity, reg *schema.Registry) {
	for _, rel := range entity.Relations {
		srcValue, ok := src[rel.Name]
		if !ok {
			continue
		}
		target, ok := reg.Lookup(rel.Target)
		if !ok {
			continue
		}
		if rel.ToMany {
			dstList, _ := dst[rel.Name].([]Entity)
			srcList, _ := srcValue.([]Entity)
			sub := &collector{reg: reg}
			for _, item := range dstList {
				sub.add(item, target)
			}
			for _, item := range srcList {
				sub.add(item, target)
			}
			dst[rel.Name] = sub.entities
			continue
		}
		dstChild, dstOk := dst[rel.Name].(Entity)
		srcChild, srcOk := srcValue.(Entity)
		if dstOk && srcOk {
			mergeEntity(dstChild, srcChild, target, reg)
		} else if !dstOk && srcOk {
			dst[rel.Name] = srcChild
		}
	}
}

func convertValue(value any) any {
	if value == nil {
		return nil
	}
	if b, ok := value.([]byte); ok {
		return string(b)
	}
	return value
}
