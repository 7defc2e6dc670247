package salesman

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leadSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchema("Lead", map[string]any{
		"id":      "Id",
		"contact": map[string]any{"firstName": "FirstName", "lastName": "LastName"},
		"owner":   map[string]any{"ref": "User"},
	})
	require.NoError(t, err)
	return s
}

func TestNewSchema(t *testing.T) {
	s := leadSchema(t)
	assert.Equal(t, "Lead", s.ObjectName())
	assert.Len(t, s.Attributes(), 4)

	_, err := NewSchema("", nil)
	assert.True(t, IsCode(err, ErrArgument))

	_, err = NewSchema("Lead", map[string]any{"bad": 1})
	assert.True(t, IsCode(err, ErrInvalidDefinition))

	assert.Panics(t, func() { MustSchema("Lead", map[string]any{"bad": false}) })
}

func TestSchemaAttributesAreCopies(t *testing.T) {
	s := leadSchema(t)
	attrs := s.Attributes()
	attrs["id"].Column = "Other"
	delete(attrs, "owner")

	def, ok := s.Path("id")
	require.True(t, ok)
	assert.Equal(t, "Id", def.Column)
	_, ok = s.Path("owner")
	assert.True(t, ok)
}

func TestSchemaSetPathNewField(t *testing.T) {
	s := leadSchema(t)
	def, err := s.SetPath("contact.email", map[string]any{"column": "Email"})
	require.NoError(t, err)
	assert.Equal(t, "Email", def.Column)

	got, ok := s.Path("contact.email")
	require.True(t, ok)
	assert.Equal(t, "Email", got.Column)
}

func TestSchemaSetPathRejectsExtendAndShadow(t *testing.T) {
	s := leadSchema(t)

	_, err := s.SetPath("contact.firstName.initial", map[string]any{"column": "Initial"})
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrInvalidPath))
	assert.Contains(t, err.Error(), "cannot be extended")

	_, err = s.SetPath("contact", map[string]any{"column": "Contact"})
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrInvalidPath))
	assert.Contains(t, err.Error(), "cannot be reduced")
}

func TestSchemaSetPathExistingField(t *testing.T) {
	s := leadSchema(t)

	_, err := s.SetPath("id", map[string]any{"column": "Other"})
	assert.True(t, IsCode(err, ErrInvalidPath))

	def, err := s.SetPath("owner", map[string]any{"relationship": "Owner", "collection": false})
	require.NoError(t, err)
	assert.Equal(t, "User", def.Ref)
	assert.Equal(t, map[string]any{"relationship": "Owner"}, def.Options)

	_, err = s.SetPath("owner", map[string]any{"ref": 7})
	assert.True(t, IsCode(err, ErrInvalidDefinition))
}

func TestSchemaSetPathInvalidDefinition(t *testing.T) {
	s := leadSchema(t)
	_, err := s.SetPath("x", nil)
	assert.True(t, IsCode(err, ErrInvalidDefinition))
	_, err = s.SetPath("x", map[string]any{"label": "no column"})
	assert.True(t, IsCode(err, ErrInvalidDefinition))
}

func TestSchemaHookOrder(t *testing.T) {
	s := leadSchema(t)
	var calls []string
	track := func(name string) HookFunc {
		return func(_ context.Context, v any) (any, error) {
			calls = append(calls, name)
			return nil, nil
		}
	}
	s.Pre("save", track("save.pre1")).Pre("save", track("save.pre2"))
	s.Pre("create", track("create.pre"))
	s.Post("create", track("create.post"))
	s.Post("save", track("save.post1")).Post("save", track("save.post2"))

	out, err := s.CallHook(context.Background(), []string{"save", "create"}, "in", func(_ context.Context, v any) (any, error) {
		calls = append(calls, "op")
		return "out", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "out", out)
	assert.Equal(t, []string{
		"save.pre1", "save.pre2", "create.pre", "op", "create.post", "save.post1", "save.post2",
	}, calls)
}

func TestSchemaHookThreadsValue(t *testing.T) {
	s := leadSchema(t)
	s.Pre("find", func(_ context.Context, v any) (any, error) { return v.(string) + "+pre", nil })
	s.Post("find", func(_ context.Context, v any) (any, error) { return strings.ToUpper(v.(string)), nil })

	out, err := s.CallHook(context.Background(), []string{"find"}, "q", func(_ context.Context, v any) (any, error) {
		assert.Equal(t, "q+pre", v)
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Q+PRE", out)
}

func TestSchemaHookErrorAborts(t *testing.T) {
	s := leadSchema(t)
	boom := errors.New("boom")
	ran := false
	s.Pre("delete", func(context.Context, any) (any, error) { return nil, boom })
	s.Post("delete", func(context.Context, any) (any, error) { ran = true; return nil, nil })

	_, err := s.CallHook(context.Background(), []string{"delete"}, "x", func(context.Context, any) (any, error) {
		ran = true
		return nil, nil
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, ran)
}

func TestSchemaHookStopsOnCancelledContext(t *testing.T) {
	s := leadSchema(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.CallHook(ctx, nil, nil, func(context.Context, any) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSchemaRejectsNilFuncs(t *testing.T) {
	s := leadSchema(t)
	assert.Panics(t, func() { s.Pre("save", nil) })
	assert.Panics(t, func() { s.Post("save", nil) })
	assert.Panics(t, func() { s.Method("m", nil) })
	assert.Panics(t, func() { s.Static("s", nil) })
}

func TestSchemaPlugin(t *testing.T) {
	s := leadSchema(t)
	err := s.Plugin(func(s *Schema, cfg any) error {
		_, err := s.SetPath(cfg.(string), map[string]any{"column": "Email"})
		return err
	}, "email")
	require.NoError(t, err)
	_, ok := s.Path("email")
	assert.True(t, ok)
}

const leadYAML = `
name: Prospect
object: Lead
columnKey: $column
attributes:
  id: Id
  name: true
  contact:
    phone: { $column: Phone, label: Phone }
  attachments: { ref: Attachment, collection: true }
`

func TestParseSchema(t *testing.T) {
	doc, s, err := ParseSchema(strings.NewReader(leadYAML))
	require.NoError(t, err)
	assert.Equal(t, "Prospect", doc.Name)
	assert.Equal(t, "$column", doc.ColumnKey)
	assert.Equal(t, "Lead", s.ObjectName())

	phone, ok := s.Path("contact.phone")
	require.True(t, ok)
	assert.Equal(t, "Phone", phone.Column)
	assert.Equal(t, map[string]any{"label": "Phone"}, phone.Options)

	att, ok := s.Path("attachments")
	require.True(t, ok)
	assert.Equal(t, "Attachment", att.Ref)
	assert.True(t, att.Collection)

	name, ok := s.Path("name")
	require.True(t, ok)
	assert.Equal(t, "name", name.Column)
}

func TestParseSchemaErrors(t *testing.T) {
	_, _, err := ParseSchema(strings.NewReader("attributes: {id: Id}\n"))
	assert.True(t, IsCode(err, ErrInvalidDefinition))

	_, _, err = ParseSchema(strings.NewReader("object: Lead\nunknown: 1\n"))
	assert.True(t, IsCode(err, ErrInvalidDefinition))

	_, _, err = ParseSchema(strings.NewReader("object: Lead\nattributes: {id: false}\n"))
	assert.True(t, IsCode(err, ErrInvalidDefinition))
}

func TestLoadSchemaFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lead.yaml")
	require.NoError(t, os.WriteFile(path, []byte(leadYAML), 0o600))

	doc, _, err := LoadSchemaFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Prospect", doc.Name)

	_, _, err = LoadSchemaFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, IsCode(err, ErrArgument))
}
