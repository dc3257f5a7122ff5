// Package schema holds the statically constructed entity metadata the
// loader plans queries against: entity names, table mappings, scalar
// columns, and relation descriptors. The registry is built once at
// startup and treated as read-only afterwards.
package schema

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// Column describes a scalar column of an entity.
type Column struct {
	// Name is the entity property name exposed to selections.
	Name string
	// DBName is the column name in the backing table. Defaults to the
	// snake_case form of Name.
	DBName string
	// PrimaryKey marks identity columns. They are always projected and
	// drive row deduplication.
	PrimaryKey bool
}

// Relation describes a navigable link from one entity to another.
type Relation struct {
	// Name is the property name exposed to selections.
	Name string
	// Target is the registered name of the related entity.
	Target string
	// Inverse optionally names the relation on the target entity that
	// points back here. Used to terminate traversal of bidirectional
	// relationship graphs.
	Inverse string
	// LocalColumn / RemoteColumn are the join key column names in the
	// owning and target tables. For to-one relations they default to
	// snake_case(Name) + "_id" and the target's primary key; for
	// to-many relations to the owner's primary key and
	// snake_case(owner entity) + "_id".
	LocalColumn  string
	RemoteColumn string
	// ToMany marks one-to-many relations; the join can multiply rows.
	ToMany bool
}

// Entity is the metadata record for one registered entity.
type Entity struct {
	Name      string
	Table     string
	Columns   []Column
	Relations []Relation
}

// PrimaryKeyColumns returns the entity's identity columns in declaration order.
func (e Entity) PrimaryKeyColumns() []Column {
	var pks []Column
	for _, col := range e.Columns {
		if col.PrimaryKey {
			pks = append(pks, col)
		}
	}
	return pks
}

// Column looks up a scalar column by property name.
func (e Entity) Column(name string) (Column, bool) {
	for _, col := range e.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// Relation looks up a relation by property name.
func (e Entity) Relation(name string) (Relation, bool) {
	for _, rel := range e.Relations {
		if rel.Name == name {
			return rel, true
		}
	}
	return Relation{}, false
}

// Registry maps entity names to their metadata. Build it with Register
// calls and seal it with Validate before handing it to a loader.
type Registry struct {
	entities map[string]Entity
	order    []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entities: make(map[string]Entity)}
}

// Register adds an entity, filling in defaults: the table name is the
// pluralized snake_case entity name, column DB names are snake_case
// property names, and relation join keys default to pk / <owner>_id.
func (r *Registry) Register(entity Entity) error {
	if entity.Name == "" {
		return fmt.Errorf("entity name is required")
	}
	if _, exists := r.entities[entity.Name]; exists {
		return fmt.Errorf("entity %q already registered", entity.Name)
	}
	if len(entity.Columns) == 0 {
		return fmt.Errorf("entity %q has no columns", entity.Name)
	}

	if entity.Table == "" {
		entity.Table = inflection.Plural(ToSnakeCase(entity.Name))
	}

	seen := make(map[string]struct{}, len(entity.Columns)+len(entity.Relations))
	for i, col := range entity.Columns {
		if col.Name == "" {
			return fmt.Errorf("entity %q: column %d has no name", entity.Name, i)
		}
		if _, dup := seen[col.Name]; dup {
			return fmt.Errorf("entity %q: duplicate property %q", entity.Name, col.Name)
		}
		seen[col.Name] = struct{}{}
		if col.DBName == "" {
			entity.Columns[i].DBName = ToSnakeCase(col.Name)
		}
	}
	for i, rel := range entity.Relations {
		if rel.Name == "" {
			return fmt.Errorf("entity %q: relation %d has no name", entity.Name, i)
		}
		if _, dup := seen[rel.Name]; dup {
			return fmt.Errorf("entity %q: duplicate property %q", entity.Name, rel.Name)
		}
		seen[rel.Name] = struct{}{}
		if rel.Target == "" {
			return fmt.Errorf("entity %q: relation %q has no target", entity.Name, rel.Name)
		}
		if rel.LocalColumn == "" {
			if rel.ToMany {
				if pks := entity.PrimaryKeyColumns(); len(pks) > 0 {
					entity.Relations[i].LocalColumn = pks[0].DBName
				}
			} else {
				entity.Relations[i].LocalColumn = ToSnakeCase(rel.Name) + "_id"
			}
		}
	}

	r.entities[entity.Name] = entity
	r.order = append(r.order, entity.Name)
	return nil
}

// MustRegister is Register for static setup code; it panics on error.
func (r *Registry) MustRegister(entity Entity) {
	if err := r.Register(entity); err != nil {
		panic(err)
	}
}

// Lookup returns the metadata for a registered entity.
func (r *Registry) Lookup(name string) (Entity, bool) {
	entity, ok := r.entities[name]
	return entity, ok
}

// Entities returns the registered entity names in registration order.
func (r *Registry) Entities() []string {
	return append([]string(nil), r.order...)
}

// Validate checks cross-entity consistency: every relation target must
// be registered, remote join keys must resolve, and declared inverse
// relations must exist on the target.
func (r *Registry) Validate() error {
	for _, name := range r.order {
		entity := r.entities[name]
		for i, rel := range entity.Relations {
			target, ok := r.entities[rel.Target]
			if !ok {
				return fmt.Errorf("entity %q: relation %q targets unregistered entity %q", name, rel.Name, rel.Target)
			}
			if rel.RemoteColumn == "" {
				if rel.ToMany {
					entity.Relations[i].RemoteColumn = ToSnakeCase(name) + "_id"
				} else if pks := target.PrimaryKeyColumns(); len(pks) > 0 {
					entity.Relations[i].RemoteColumn = pks[0].DBName
				} else {
					return fmt.Errorf("entity %q: relation %q has no remote column and target %q has no primary key", name, rel.Name, rel.Target)
				}
			}
			if rel.Inverse != "" {
				if _, ok := target.Relation(rel.Inverse); !ok {
					return fmt.Errorf("entity %q: relation %q declares inverse %q missing on %q", name, rel.Name, rel.Inverse, rel.Target)
				}
			}
		}
		r.entities[name] = entity
	}
	return nil
}

// ToSnakeCase converts a camelCase or PascalCase property name to its
// snake_case database form.
func ToSnakeCase(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (!unicode.IsUpper(runes[i-1]) || (i+1 < len(runes) && !unicode.IsUpper(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
