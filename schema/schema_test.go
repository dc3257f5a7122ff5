package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterDefaults(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Entity{
		Name: "BlogPost",
		Columns: []Column{
			{Name: "id", PrimaryKey: true},
			{Name: "ownerId"},
			{Name: "createdAt"},
		},
	}))

	entity, ok := reg.Lookup("BlogPost")
	require.True(t, ok)
	assert.Equal(t, "blog_posts", entity.Table)
	assert.Equal(t, "id", entity.Columns[0].DBName)
	assert.Equal(t, "owner_id", entity.Columns[1].DBName)
	assert.Equal(t, "created_at", entity.Columns[2].DBName)
}

func TestRegisterRelationDefaults(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Entity{
		Name: "User",
		Columns: []Column{
			{Name: "id", PrimaryKey: true},
			{Name: "email"},
		},
		Relations: []Relation{
			{Name: "posts", Target: "Post", ToMany: true},
		},
	}))
	require.NoError(t, reg.Register(Entity{
		Name: "Post",
		Columns: []Column{
			{Name: "id", PrimaryKey: true},
			{Name: "title"},
		},
		Relations: []Relation{
			{Name: "owner", Target: "User"},
		},
	}))
	require.NoError(t, reg.Validate())

	user, _ := reg.Lookup("User")
	posts, ok := user.Relation("posts")
	require.True(t, ok)
	assert.Equal(t, "id", posts.LocalColumn)
	assert.Equal(t, "user_id", posts.RemoteColumn)

	post, _ := reg.Lookup("Post")
	owner, ok := post.Relation("owner")
	require.True(t, ok)
	assert.Equal(t, "owner_id", owner.LocalColumn)
	assert.Equal(t, "id", owner.RemoteColumn)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	entity := Entity{
		Name:    "User",
		Columns: []Column{{Name: "id", PrimaryKey: true}},
	}
	require.NoError(t, reg.Register(entity))

	err := reg.Register(entity)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegisterRejectsDuplicateProperties(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(Entity{
		Name: "User",
		Columns: []Column{
			{Name: "id", PrimaryKey: true},
			{Name: "email"},
		},
		Relations: []Relation{
			{Name: "email", Target: "Contact"},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate property "email"`)
}

func TestValidateRejectsUnknownTarget(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Entity{
		Name:    "Post",
		Columns: []Column{{Name: "id", PrimaryKey: true}},
		Relations: []Relation{
			{Name: "owner", Target: "User"},
		},
	}))

	err := reg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unregistered entity")
}

func TestValidateRejectsMissingInverse(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Entity{
		Name:    "Post",
		Columns: []Column{{Name: "id", PrimaryKey: true}},
		Relations: []Relation{
			{Name: "owner", Target: "User", Inverse: "articles"},
		},
	}))
	require.NoError(t, reg.Register(Entity{
		Name:    "User",
		Columns: []Column{{Name: "id", PrimaryKey: true}},
	}))

	err := reg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `inverse "articles"`)
}

func TestToSnakeCase(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"id", "id"},
		{"ownerId", "owner_id"},
		{"OwnerID", "owner_id"},
		{"createdAt", "created_at"},
		{"HTMLBody", "html_body"},
		{"User", "user"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ToSnakeCase(tt.input))
		})
	}
}
