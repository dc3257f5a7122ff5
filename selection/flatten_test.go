package selection

import (
	"testing"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// parseRootFields parses a query document and returns the root fields of
// its first operation plus the document's fragment table.
func parseRootFields(t *testing.T, query string) ([]*ast.Field, map[string]ast.Definition) {
	t.Helper()

	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{Body: []byte(query)}),
	})
	require.NoError(t, err)

	var fields []*ast.Field
	fragments := make(map[string]ast.Definition)
	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.OperationDefinition:
			for _, sel := range d.SelectionSet.Selections {
				if field, ok := sel.(*ast.Field); ok {
					fields = append(fields, field)
				}
			}
		case *ast.FragmentDefinition:
			fragments[d.Name.Value] = d
		}
	}
	return fields, fragments
}

func TestFromFieldsBasic(t *testing.T) {
	fields, fragments := parseRootFields(t, `
		query {
			user(id: 5) {
				id
				email
				posts(first: 10, published: true) {
					title
				}
			}
		}
	`)

	tree := FromFields(fields, fragments)
	require.Equal(t, 3, tree.Len())
	assert.True(t, tree.Has("id"))
	assert.True(t, tree.Has("email"))

	posts, ok := tree.Field("posts")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"first": float64(10), "published": true}, posts.Arguments)
	require.NotNil(t, posts.Children)
	assert.True(t, posts.Children.Has("title"))
	assert.Equal(t, 1, posts.Children.Len())
}

func TestFromFieldsMergesFragments(t *testing.T) {
	fields, fragments := parseRootFields(t, `
		query {
			post {
				title
				...Identity
				...Ownership
			}
		}
		fragment Identity on Post {
			id
			owner { id }
		}
		fragment Ownership on Post {
			owner { email }
		}
	`)

	tree := FromFields(fields, fragments)
	require.Equal(t, 3, tree.Len())
	assert.True(t, tree.Has("title"))
	assert.True(t, tree.Has("id"))

	owner, ok := tree.Field("owner")
	require.True(t, ok)
	require.NotNil(t, owner.Children)
	assert.True(t, owner.Children.Has("id"))
	assert.True(t, owner.Children.Has("email"))
	assert.Equal(t, 2, owner.Children.Len())
}

func TestFromFieldsInlineFragment(t *testing.T) {
	fields, fragments := parseRootFields(t, `
		query {
			node {
				id
				... on Post {
					title
				}
			}
		}
	`)

	tree := FromFields(fields, fragments)
	assert.True(t, tree.Has("id"))
	assert.True(t, tree.Has("title"))
}

func TestFromFieldsFragmentCycle(t *testing.T) {
	fields, fragments := parseRootFields(t, `
		query {
			post {
				...A
			}
		}
		fragment A on Post {
			id
			...B
		}
		fragment B on Post {
			title
			...A
		}
	`)

	tree := FromFields(fields, fragments)
	assert.True(t, tree.Has("id"))
	assert.True(t, tree.Has("title"))
	assert.Equal(t, 2, tree.Len())
}

func TestFromFieldsSkipsTypename(t *testing.T) {
	fields, fragments := parseRootFields(t, `
		query {
			post {
				__typename
				id
			}
		}
	`)

	tree := FromFields(fields, fragments)
	assert.False(t, tree.Has("__typename"))
	assert.Equal(t, 1, tree.Len())
}

func TestArgumentLiterals(t *testing.T) {
	fields, fragments := parseRootFields(t, `
		query ($cursor: String) {
			feed {
				posts(
					first: 3,
					ratio: 0.5,
					status: PUBLISHED,
					tags: ["go", "sql"],
					filter: { draft: false },
					after: $cursor,
				) {
					id
				}
			}
		}
	`)

	tree := FromFields(fields, fragments)
	posts, ok := tree.Field("posts")
	require.True(t, ok)
	assert.Equal(t, map[string]any{
		"first":  float64(3),
		"ratio":  0.5,
		"status": "PUBLISHED",
		"tags":   []any{"go", "sql"},
		"filter": map[string]any{"draft": false},
		"after":  nil,
	}, posts.Arguments)
}

func TestFromFieldsWithoutSelectionSet(t *testing.T) {
	fields, fragments := parseRootFields(t, `query { version }`)

	tree := FromFields(fields, fragments)
	require.NotNil(t, tree)
	assert.Equal(t, 0, tree.Len())
}
