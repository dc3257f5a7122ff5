// Package planner projects a flattened field selection into a minimal
// SQL statement: one SELECT clause per requested scalar column and one
// LEFT JOIN per requested relation, recursively. The planner only
// accumulates query-builder state; it never executes anything.
package planner

import (
	"errors"
	"fmt"
	"sort"

	sq "github.com/Masterminds/squirrel"

	"graphload/internal/sqlutil"
	"graphload/schema"
	"graphload/selection"
)

// ErrUnknownEntity indicates a load referenced an unregistered entity.
var ErrUnknownEntity = errors.New("unknown entity")

// ErrUnknownField indicates a selection or condition named a property
// the entity metadata does not declare. Malformed selections fail
// planning; only an absent selection falls back to select-all.
var ErrUnknownField = errors.New("unknown field")

// ScanColumn maps one result column alias back to the entity property
// path it hydrates, e.g. alias "q1_owner_email" -> path owner.email.
type ScanColumn struct {
	Alias string
	Path  []string
}

// Query is a planned SQL statement with bound args and the column map
// the demultiplexer needs to reassemble rows.
type Query struct {
	SQL     string
	Args    []any
	Columns []ScanColumn
}

// Plan builds the query for one load request. A nil selection projects
// every scalar column and recurses into every relation, guarding
// against relation cycles; a non-nil selection projects exactly the
// requested fields. The condition becomes an equality WHERE per field.
func Plan(reg *schema.Registry, entityName string, sel *selection.Tree, alias string, condition map[string]any) (Query, error) {
	entity, ok := reg.Lookup(entityName)
	if !ok {
		return Query{}, fmt.Errorf("%w: %s", ErrUnknownEntity, entityName)
	}

	builder := sq.Select().
		From(sqlutil.QuoteIdentifier(entity.Table) + " AS " + sqlutil.QuoteIdentifier(alias))

	p := &projector{reg: reg}
	builder, err := p.project(builder, entity, sel, alias, nil, map[string]bool{})
	if err != nil {
		return Query{}, err
	}

	where, err := conditionClause(entity, alias, condition)
	if err != nil {
		return Query{}, err
	}
	if len(where) > 0 {
		builder = builder.Where(where)
	}

	query, args, err := builder.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return Query{}, err
	}
	return Query{SQL: query, Args: args, Columns: p.columns}, nil
}

type projector struct {
	reg     *schema.Registry
	columns []ScanColumn
}

// project adds the SELECT and JOIN clauses for one entity level.
// visited carries the relations already traversed on this path so a
// bidirectional or self-referential graph terminates.
func (p *projector) project(builder sq.SelectBuilder, entity schema.Entity, sel *selection.Tree, alias string, path []string, visited map[string]bool) (sq.SelectBuilder, error) {
	if sel == nil {
		return p.projectAll(builder, entity, alias, path, visited)
	}

	for name := range sel.Children {
		if _, ok := entity.Column(name); ok {
			continue
		}
		if _, ok := entity.Relation(name); ok {
			continue
		}
		return builder, fmt.Errorf("%w: %s.%s", ErrUnknownField, entity.Name, name)
	}

	requested := false
	for _, col := range entity.Columns {
		if sel.Has(col.Name) {
			builder = p.selectColumn(builder, alias, col, path)
			requested = true
		}
	}
	// Identity columns ride along with any scalar request so rows
	// multiplied by one-to-many joins can be deduplicated by key.
	if requested {
		for _, col := range entity.PrimaryKeyColumns() {
			if sel.Has(col.Name) {
				continue
			}
			builder = p.selectColumn(builder, alias, col, path)
		}
	}

	for _, rel := range entity.Relations {
		node, ok := sel.Field(rel.Name)
		if !ok {
			continue
		}
		target, ok := p.reg.Lookup(rel.Target)
		if !ok {
			return builder, fmt.Errorf("%w: %s", ErrUnknownEntity, rel.Target)
		}
		childAlias := alias + "_" + rel.Name
		builder = p.joinRelation(builder, alias, childAlias, rel, target)
		var err error
		builder, err = p.project(builder, target, node.Children, childAlias, appendPath(path, rel.Name), visited)
		if err != nil {
			return builder, err
		}
	}
	return builder, nil
}

// projectAll handles the absent-selection fallback: every scalar
// column plus every relation, recursively, until a relation repeats on
// the current path. A repeated relation contributes its target's
// identity columns only.
func (p *projector) projectAll(builder sq.SelectBuilder, entity schema.Entity, alias string, path []string, visited map[string]bool) (sq.SelectBuilder, error) {
	for _, col := range entity.Columns {
		builder = p.selectColumn(builder, alias, col, path)
	}

	for _, rel := range entity.Relations {
		target, ok := p.reg.Lookup(rel.Target)
		if !ok {
			return builder, fmt.Errorf("%w: %s", ErrUnknownEntity, rel.Target)
		}
		childAlias := alias + "_" + rel.Name
		childPath := appendPath(path, rel.Name)

		if visited[relationKey(entity.Name, rel.Name)] {
			builder = p.joinRelation(builder, alias, childAlias, rel, target)
			for _, col := range target.PrimaryKeyColumns() {
				builder = p.selectColumn(builder, childAlias, col, childPath)
			}
			continue
		}

		entered := enterRelation(visited, entity, rel)
		builder = p.joinRelation(builder, alias, childAlias, rel, target)
		var err error
		builder, err = p.projectAll(builder, target, childAlias, childPath, visited)
		if err != nil {
			return builder, err
		}
		leaveRelation(visited, entered)
	}
	return builder, nil
}

func (p *projector) selectColumn(builder sq.SelectBuilder, alias string, col schema.Column, path []string) sq.SelectBuilder {
	outAlias := alias + "_" + col.Name
	p.columns = append(p.columns, ScanColumn{
		Alias: outAlias,
		Path:  appendPath(path, col.Name),
	})
	return builder.Column(sqlutil.Qualify(alias, col.DBName) + " AS " + sqlutil.QuoteIdentifier(outAlias))
}

func (p *projector) joinRelation(builder sq.SelectBuilder, parentAlias, childAlias string, rel schema.Relation, target schema.Entity) sq.SelectBuilder {
	join := fmt.Sprintf("%s AS %s ON %s = %s",
		sqlutil.QuoteIdentifier(target.Table),
		sqlutil.QuoteIdentifier(childAlias),
		sqlutil.Qualify(parentAlias, rel.LocalColumn),
		sqlutil.Qualify(childAlias, rel.RemoteColumn),
	)
	return builder.LeftJoin(join)
}

func conditionClause(entity schema.Entity, alias string, condition map[string]any) (sq.Eq, error) {
	if len(condition) == 0 {
		return nil, nil
	}
	clause := sq.Eq{}
	names := make([]string, 0, len(condition))
	for name := range condition {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		col, ok := entity.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s in condition", ErrUnknownField, entity.Name, name)
		}
		clause[sqlutil.Qualify(alias, col.DBName)] = condition[name]
	}
	return clause, nil
}

func relationKey(entityName, relationName string) string {
	return entityName + "." + relationName
}

// enterRelation marks a relation and its declared inverse visited and
// returns the keys it added, so the caller can unwind them per path.
func enterRelation(visited map[string]bool, entity schema.Entity, rel schema.Relation) []string {
	keys := []string{relationKey(entity.Name, rel.Name)}
	if rel.Inverse != "" {
		keys = append(keys, relationKey(rel.Target, rel.Inverse))
	}
	added := make([]string, 0, len(keys))
	for _, key := range keys {
		if !visited[key] {
			visited[key] = true
			added = append(added, key)
		}
	}
	return added
}

func leaveRelation(visited map[string]bool, keys []string) {
	for _, key := range keys {
		delete(visited, key)
	}
}

func appendPath(path []string, name string) []string {
	out := make([]string, 0, len(path)+1)
	out = append(out, path...)
	return append(out, name)
}
