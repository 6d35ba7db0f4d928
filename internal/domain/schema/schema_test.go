package schema_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/biolink/internal/domain/entity"
	"github.com/oksasatya/biolink/internal/domain/schema"
)

var entities = map[string]any{
	"User":            entity.User{},
	"Cosmetic":        entity.Cosmetic{},
	"Link":            entity.Link{},
	"Label":           entity.Label{},
	"SocialIcon":      entity.SocialIcon{},
	"BackgroundColor": entity.BackgroundColor{},
	"NeonColor":       entity.NeonColor{},
	"Statusbar":       entity.Statusbar{},
}

func TestModels(t *testing.T) {
	models := schema.Models()
	require.Len(t, models, 8)
	assert.Equal(t, "BackgroundColor", models[0].Name)

	for _, m := range models {
		got, ok := schema.Lookup(m.Name)
		assert.True(t, ok)
		assert.Same(t, m, got)
		require.NotNil(t, m.ID(), m.Name)
		assert.Equal(t, "id", m.ID().Name)
	}

	_, ok := schema.Lookup("Post")
	assert.False(t, ok)
}

func TestColumnsMatchEntities(t *testing.T) {
	for _, m := range schema.Models() {
		t.Run(m.Name, func(t *testing.T) {
			e, ok := entities[m.Name]
			require.True(t, ok)
			typ := reflect.TypeOf(e)

			byJSON := map[string]reflect.StructField{}
			for i := 0; i < typ.NumField(); i++ {
				sf := typ.Field(i)
				name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
				byJSON[name] = sf
			}
			for _, f := range m.Fields {
				sf, ok := byJSON[f.Name]
				require.True(t, ok, "field %s has no struct field", f.Name)
				assert.Equal(t, f.Column, sf.Tag.Get("db"), f.Name)
				assert.Equal(t, f.Optional, sf.Type.Kind() == reflect.Pointer, "optional mismatch on %s", f.Name)
			}
			for _, r := range m.Relations {
				sf, ok := typ.FieldByName(r.GoField)
				require.True(t, ok, "relation %s has no struct field", r.Name)
				assert.Equal(t, "-", sf.Tag.Get("db"))
				if r.Cardinality == schema.ToMany {
					assert.Equal(t, reflect.Slice, sf.Type.Kind(), r.Name)
				} else {
					assert.Equal(t, reflect.Pointer, sf.Type.Kind(), r.Name)
				}
			}
		})
	}
}

func TestRelations(t *testing.T) {
	links, ok := schema.User.Relation("links")
	require.True(t, ok)
	assert.Equal(t, schema.ToMany, links.Cardinality)
	assert.Same(t, schema.Link, links.TargetModel())
	assert.Equal(t, "id", links.LocalField)
	assert.Equal(t, "userId", links.ForeignField)

	owner, ok := schema.Link.Relation("user")
	require.True(t, ok)
	assert.True(t, owner.Required)
	assert.Same(t, schema.User, owner.TargetModel())

	assert.Len(t, schema.User.ToManyRelations(), 5)
	assert.Empty(t, schema.Statusbar.ToManyRelations())
}

func TestFieldFlags(t *testing.T) {
	email, _ := schema.User.Field("email")
	assert.True(t, email.IsUnique)
	assert.True(t, email.Required())

	role, _ := schema.User.Field("role")
	assert.Equal(t, schema.Enum, role.Kind)
	assert.False(t, role.Required())
	assert.True(t, role.Comparable())

	glow, _ := schema.User.Field("glowUsername")
	assert.False(t, glow.Comparable())

	assert.Equal(t, "updatedAt", schema.User.UpdatedAtField().Name)
	assert.Nil(t, schema.Label.UpdatedAtField())

	var uniques []string
	for _, f := range schema.Statusbar.UniqueFields() {
		uniques = append(uniques, f.Name)
	}
	assert.Equal(t, []string{"id", "userId"}, uniques)

	id, _ := schema.User.Field("id")
	require.NotNil(t, id.Generate)
	assert.NotEqual(t, id.Generate(), id.Generate())
}
