package postgres

import (
	"reflect"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/oksasatya/biolink/internal/domain/entity"
	"github.com/oksasatya/biolink/internal/domain/schema"
)

// binding ties a model descriptor to its entity struct.
type binding struct {
	model *schema.Model
	typ   reflect.Type
	// byName maps json names (API field and relation names) to struct field indexes.
	byName  map[string]int
	collect func(rows pgx.Rows) (reflect.Value, error)
}

var bindings = map[string]*binding{}

func bind[T any](m *schema.Model) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	b := &binding{model: m, typ: t, byName: map[string]int{}}
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name != "" && name != "-" {
			b.byName[name] = i
		}
	}
	b.collect = func(rows pgx.Rows) (reflect.Value, error) {
		out, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[T])
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(out), nil
	}
	bindings[m.Name] = b
}

func init() {
	bind[entity.User](schema.User)
	bind[entity.Cosmetic](schema.Cosmetic)
	bind[entity.Link](schema.Link)
	bind[entity.Label](schema.Label)
	bind[entity.SocialIcon](schema.SocialIcon)
	bind[entity.BackgroundColor](schema.BackgroundColor)
	bind[entity.NeonColor](schema.NeonColor)
	bind[entity.Statusbar](schema.Statusbar)
}

// field returns the struct field of row v holding the API name.
func (b *binding) field(v reflect.Value, name string) reflect.Value {
	i, ok := b.byName[name]
	if !ok {
		return reflect.Value{}
	}
	return v.Field(i)
}
