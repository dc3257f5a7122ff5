package demux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphload/internal/planner"
	"graphload/schema"
)

func newTestRegistry(t *testing.T) *schema.Registry {
	t.Helper()

	reg := schema.NewRegistry()
	reg.MustRegister(schema.Entity{
		Name: "User",
		Columns: []schema.Column{
			{Name: "id", PrimaryKey: true},
			{Name: "email"},
		},
		Relations: []schema.Relation{
			{Name: "posts", Target: "Post", ToMany: true, Inverse: "owner", RemoteColumn: "owner_id"},
		},
	})
	reg.MustRegister(schema.Entity{
		Name: "Post",
		Columns: []schema.Column{
			{Name: "id", PrimaryKey: true},
			{Name: "title"},
		},
		Relations: []schema.Relation{
			{Name: "owner", Target: "User", LocalColumn: "owner_id", Inverse: "posts"},
		},
	})
	require.NoError(t, reg.Validate())
	return reg
}

func userCols(alias string) []planner.ScanColumn {
	return []planner.ScanColumn{
		{Alias: alias + "_id", Path: []string{"id"}},
		{Alias: alias + "_email", Path: []string{"email"}},
		{Alias: alias + "_posts_id", Path: []string{"posts", "id"}},
		{Alias: alias + "_posts_title", Path: []string{"posts", "title"}},
	}
}

func TestManyCollapsesJoinExplosion(t *testing.T) {
	reg := newTestRegistry(t)
	rows := []RawRow{
		{"q1_id": 1, "q1_email": "a@example.com", "q1_posts_id": 10, "q1_posts_title": "first"},
		{"q1_id": 1, "q1_email": "a@example.com", "q1_posts_id": 11, "q1_posts_title": "second"},
		{"q1_id": 2, "q1_email": "b@example.com", "q1_posts_id": nil, "q1_posts_title": nil},
	}

	entities, err := Many(rows, userCols("q1"), "q1", "User", reg)
	require.NoError(t, err)
	require.Len(t, entities, 2)

	assert.Equal(t, Entity{
		"id":    1,
		"email": "a@example.com",
		"posts": []Entity{
			{"id": 10, "title": "first"},
			{"id": 11, "title": "second"},
		},
	}, entities[0])
	assert.Equal(t, Entity{
		"id":    2,
		"email": "b@example.com",
		"posts": []Entity{},
	}, entities[1])
}

func TestManyDeduplicatesRepeatedChildRows(t *testing.T) {
	reg := newTestRegistry(t)
	rows := []RawRow{
		{"q1_id": 1, "q1_email": "a@example.com", "q1_posts_id": 10, "q1_posts_title": "first"},
		{"q1_id": 1, "q1_email": "a@example.com", "q1_posts_id": 10, "q1_posts_title": "first"},
	}

	entities, err := Many(rows, userCols("q1"), "q1", "User", reg)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Len(t, entities[0]["posts"], 1)
}

func TestManyFiltersByAliasPrefix(t *testing.T) {
	reg := newTestRegistry(t)
	cols := append(userCols("q1"),
		planner.ScanColumn{Alias: "q2_id", Path: []string{"id"}},
		planner.ScanColumn{Alias: "q2_title", Path: []string{"title"}},
	)
	rows := []RawRow{
		{"q1_id": nil, "q1_email": nil, "q1_posts_id": nil, "q1_posts_title": nil, "q2_id": 5, "q2_title": "hi"},
	}

	users, err := Many(rows, cols, "q1", "User", reg)
	require.NoError(t, err)
	assert.Empty(t, users)

	posts, err := Many(rows, cols, "q2", "Post", reg)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, Entity{"id": 5, "title": "hi"}, posts[0])
}

func TestOneAbsent(t *testing.T) {
	reg := newTestRegistry(t)
	rows := []RawRow{
		{"q1_id": nil, "q1_email": nil, "q1_posts_id": nil, "q1_posts_title": nil},
	}

	entity, found, err := One(rows, userCols("q1"), "q1", "User", reg)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, entity)
}

func TestOneReturnsFirstEntity(t *testing.T) {
	reg := newTestRegistry(t)
	cols := []planner.ScanColumn{
		{Alias: "q1_id", Path: []string{"id"}},
		{Alias: "q1_title", Path: []string{"title"}},
	}
	rows := []RawRow{
		{"q1_id": 10, "q1_title": "first"},
		{"q1_id": 11, "q1_title": "second"},
	}

	entity, found, err := One(rows, cols, "q1", "Post", reg)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, Entity{"id": 10, "title": "first"}, entity)
}

func TestManyHydratesToOneRelation(t *testing.T) {
	reg := newTestRegistry(t)
	cols := []planner.ScanColumn{
		{Alias: "q1_id", Path: []string{"id"}},
		{Alias: "q1_title", Path: []string{"title"}},
		{Alias: "q1_owner_id", Path: []string{"owner", "id"}},
		{Alias: "q1_owner_email", Path: []string{"owner", "email"}},
	}
	rows := []RawRow{
		{"q1_id": 10, "q1_title": "first", "q1_owner_id": 1, "q1_owner_email": "a@example.com"},
		{"q1_id": 11, "q1_title": "orphan", "q1_owner_id": nil, "q1_owner_email": nil},
	}

	entities, err := Many(rows, cols, "q1", "Post", reg)
	require.NoError(t, err)
	require.Len(t, entities, 2)

	assert.Equal(t, Entity{"id": 1, "email": "a@example.com"}, entities[0]["owner"])
	assert.Nil(t, entities[1]["owner"])
	assert.Contains(t, entities[1], "owner")
}

func TestManyUnknownEntity(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := Many(nil, nil, "q1", "Comment", reg)
	require.ErrorIs(t, err, planner.ErrUnknownEntity)
}

type fakeRows struct {
	rows [][]any
	idx  int
	err  error
}

func (f *fakeRows) Next() bool {
	if f.idx >= len(f.rows) {
		return false
	}
	f.idx++
	return true
}

func (f *fakeRows) Scan(dest ...any) error {
	row := f.rows[f.idx-1]
	for i, value := range row {
		*(dest[i].(*any)) = value
	}
	return nil
}

func (f *fakeRows) Err() error   { return f.err }
func (f *fakeRows) Close() error { return nil }

func TestScanRows(t *testing.T) {
	cols := []planner.ScanColumn{
		{Alias: "q1_id", Path: []string{"id"}},
		{Alias: "q1_title", Path: []string{"title"}},
	}
	rows := &fakeRows{rows: [][]any{
		{int64(1), []byte("hello")},
		{int64(2), nil},
	}}

	raw, err := ScanRows(rows, cols)
	require.NoError(t, err)
	require.Len(t, raw, 2)
	assert.Equal(t, RawRow{"q1_id": int64(1), "q1_title": "hello"}, raw[0])
	assert.Equal(t, RawRow{"q1_id": int64(2), "q1_title": nil}, raw[1])
}
