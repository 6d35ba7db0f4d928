package postgres

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/biolink/internal/domain/dberr"
	"github.com/oksasatya/biolink/internal/domain/query"
	"github.com/oksasatya/biolink/internal/domain/schema"
	"github.com/oksasatya/biolink/pkg/helpers"
	"github.com/oksasatya/biolink/pkg/validation"
)

// Action names an operation as seen by middlewares.
type Action string

const (
	ActionFindUnique          Action = "findUnique"
	ActionFindUniqueOrThrow   Action = "findUniqueOrThrow"
	ActionFindFirst           Action = "findFirst"
	ActionFindFirstOrThrow    Action = "findFirstOrThrow"
	ActionFindMany            Action = "findMany"
	ActionCreate              Action = "create"
	ActionCreateMany          Action = "createMany"
	ActionCreateManyAndReturn Action = "createManyAndReturn"
	ActionUpdate              Action = "update"
	ActionUpdateMany          Action = "updateMany"
	ActionUpdateManyAndReturn Action = "updateManyAndReturn"
	ActionUpsert              Action = "upsert"
	ActionDelete              Action = "delete"
	ActionDeleteMany          Action = "deleteMany"
	ActionCount               Action = "count"
	ActionAggregate           Action = "aggregate"
	ActionGroupBy             Action = "groupBy"
)

// Params describe one operation. Args holds the query argument struct of
// the action (query.CreateArgs for create and so on); middlewares may
// replace it.
type Params struct {
	Model  string
	Action Action
	Args   any
	// InTransaction is set when the operation runs on a transaction-bound client.
	InTransaction bool
}

// Handler executes an operation.
type Handler func(ctx context.Context, p Params) (any, error)

// Middleware wraps a Handler.
type Middleware func(next Handler) Handler

func (c *Client) dispatch(ctx context.Context, p Params, h Handler) (any, error) {
	p.InTransaction = c.tx != nil
	for i := len(c.mws) - 1; i >= 0; i-- {
		h = c.mws[i](h)
	}
	return h(ctx, p)
}

// LoggingMiddleware logs every operation with its duration. Failures are
// logged at warn level, the rest at debug level.
func LoggingMiddleware(logger *logrus.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, p Params) (any, error) {
			start := time.Now()
			res, err := next(ctx, p)
			entry := logger.WithFields(logrus.Fields{
				"model":       p.Model,
				"action":      p.Action,
				"duration_ms": time.Since(start).Milliseconds(),
				"tx":          p.InTransaction,
			})
			if err != nil {
				entry.WithError(err).Warn("query failed")
			} else {
				entry.Debug("query")
			}
			return res, err
		}
	}
}

// PasswordMiddleware hashes User.password with bcrypt before it is written,
// including users created through nested writes of other models. Values that
// already look like bcrypt hashes are kept.
func PasswordMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, p Params) (any, error) {
			m, ok := schema.Lookup(p.Model)
			if !ok {
				return next(ctx, p)
			}
			var err error
			switch a := p.Args.(type) {
			case query.CreateArgs:
				a.Data, err = hashPassword(m, a.Data)
				p.Args = a
			case query.CreateManyArgs:
				rows := make([]query.Data, len(a.Data))
				for i, d := range a.Data {
					if rows[i], err = hashPassword(m, d); err != nil {
						break
					}
				}
				a.Data = rows
				p.Args = a
			case query.UpdateArgs:
				a.Data, err = hashPassword(m, a.Data)
				p.Args = a
			case query.UpdateManyArgs:
				a.Data, err = hashPassword(m, a.Data)
				p.Args = a
			case query.UpsertArgs:
				if a.Create, err = hashPassword(m, a.Create); err == nil {
					a.Update, err = hashPassword(m, a.Update)
				}
				p.Args = a
			}
			if err != nil {
				return nil, err
			}
			return next(ctx, p)
		}
	}
}

// hashPassword returns d with every plain User password replaced by its
// hash. d itself is never modified.
func hashPassword(m *schema.Model, d query.Data) (query.Data, error) {
	out, cloned := d, false
	set := func(k string, v any) {
		if !cloned {
			out, cloned = d.Clone(), true
		}
		out[k] = v
	}
	for _, k := range d.Keys() {
		n, ok := query.AsNested(d[k])
		if !ok || len(n.Create) == 0 {
			continue
		}
		rel, ok := m.Relation(k)
		if !ok {
			continue
		}
		rows := make([]query.Data, len(n.Create))
		for i, row := range n.Create {
			h, err := hashPassword(rel.TargetModel(), row)
			if err != nil {
				return nil, err
			}
			rows[i] = h
		}
		set(k, &query.Nested{Create: rows, Connect: n.Connect})
	}
	if m != schema.User {
		return out, nil
	}
	raw, ok := deref(d["password"]).(string)
	if !ok || helpers.IsPasswordHash(raw) {
		return out, nil
	}
	hash, err := helpers.HashPassword(raw)
	if err != nil {
		return nil, err
	}
	set("password", hash)
	return out, nil
}

// ValidationMiddleware checks written values against the validator rules of
// the model descriptors, including rows of nested creates.
func ValidationMiddleware(v *validator.Validate) Middleware {
	if v == nil {
		v = validator.New()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, p Params) (any, error) {
			m, ok := schema.Lookup(p.Model)
			if !ok {
				return next(ctx, p)
			}
			var rows []query.Data
			switch a := p.Args.(type) {
			case query.CreateArgs:
				rows = append(rows, a.Data)
			case query.CreateManyArgs:
				rows = append(rows, a.Data...)
			case query.UpdateArgs:
				rows = append(rows, a.Data)
			case query.UpdateManyArgs:
				rows = append(rows, a.Data)
			case query.UpsertArgs:
				rows = append(rows, a.Create, a.Update)
			}
			for _, d := range rows {
				if err := validateRules(v, m, string(p.Action), d); err != nil {
					return nil, err
				}
			}
			return next(ctx, p)
		}
	}
}

func validateRules(v *validator.Validate, m *schema.Model, action string, d query.Data) error {
	data := map[string]any{}
	rules := map[string]any{}
	for _, k := range d.Keys() {
		val := d[k]
		if n, ok := query.AsNested(val); ok {
			if rel, ok := m.Relation(k); ok {
				for _, row := range n.Create {
					if err := validateRules(v, rel.TargetModel(), action, row); err != nil {
						return err
					}
				}
			}
			continue
		}
		f, ok := m.Field(k)
		if !ok || f.Rule == "" || val == nil {
			continue
		}
		if _, isOp := query.AsNumberOp(val); isOp {
			continue
		}
		data[k] = deref(val)
		rules[k] = f.Rule
	}
	if len(rules) == 0 {
		return nil
	}
	errs := v.ValidateMap(data, rules)
	if len(errs) == 0 {
		return nil
	}
	k := sortedKeys(errs)[0]
	err, _ := errs[k].(error)
	return &dberr.ValidationError{Model: m.Name, Action: action, Field: k, Reason: validation.Message(err)}
}
