package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/oksasatya/biolink/internal/domain/dberr"
	"github.com/oksasatya/biolink/internal/domain/query"
	"github.com/oksasatya/biolink/internal/domain/schema"
	"github.com/oksasatya/biolink/internal/infrastructure/events"
)

// written identifies a row touched by a write and the user owning it.
type written struct {
	id    string
	owner string
}

func returning(m *schema.Model, alias string) string {
	s := " RETURNING " + column(alias, m.ID())
	if o := m.OwnerField(); o != nil {
		s += ", " + column(alias, o)
	}
	return s
}

func scanWritten(m *schema.Model, rows pgx.Rows, err error) ([]written, error) {
	if err != nil {
		return nil, mapError(m, err)
	}
	defer rows.Close()
	var out []written
	hasOwner := m.OwnerField() != nil
	for rows.Next() {
		var w written
		if hasOwner {
			err = rows.Scan(&w.id, &w.owner)
		} else {
			err = rows.Scan(&w.id)
			w.owner = w.id
		}
		if err != nil {
			return nil, mapError(m, err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(m, err)
	}
	return out, nil
}

func (c *Client) event(m *schema.Model, action string, ws []written) events.MutationEvent {
	ev := events.MutationEvent{Model: m.Name, Action: action, At: c.now().UTC()}
	seen := map[string]bool{}
	for _, w := range ws {
		ev.IDs = append(ev.IDs, w.id)
		if w.owner != "" && !seen[w.owner] {
			seen[w.owner] = true
			ev.UserIDs = append(ev.UserIDs, w.owner)
		}
	}
	return ev
}

func (c *Client) emitWritten(ctx context.Context, m *schema.Model, action string, ws []written) {
	if len(ws) > 0 {
		c.emit(ctx, c.event(m, action, ws))
	}
}

func hasNested(d query.Data) bool {
	for _, v := range d {
		if _, ok := query.AsNested(v); ok {
			return true
		}
	}
	return false
}

func scalarData(m *schema.Model, d query.Data) query.Data {
	out := query.Data{}
	for k, v := range d {
		if _, ok := m.Field(k); ok {
			out[k] = v
		}
	}
	return out
}

// belongsTo reports whether rel points at the owner of m's rows.
func belongsTo(rel *schema.Relation) bool {
	return rel.ForeignField == rel.TargetModel().ID().Name && rel.LocalField != rel.TargetModel().ID().Name
}

// insertValues renders the column list and values of one row, filling
// generated ids and updatedAt.
func (c *Client) insertValues(b *builder, m *schema.Model, d query.Data) (string, string) {
	var cols, vals []string
	for _, f := range m.Fields {
		v, ok := d[f.Name]
		if !ok {
			switch {
			case f.Generate != nil:
				v, ok = f.Generate(), true
			case f.UpdatedAt:
				v, ok = c.now().UTC(), true
			}
		}
		if !ok {
			continue
		}
		cols = append(cols, quote(f.Column))
		vals = append(vals, b.value(f, v))
	}
	return strings.Join(cols, ", "), strings.Join(vals, ", ")
}

// assignments renders the SET list of an update, stamping updatedAt.
func (c *Client) assignments(b *builder, m *schema.Model, alias string, d query.Data) []string {
	var sets []string
	for _, k := range d.Keys() {
		f, ok := m.Field(k)
		if !ok {
			continue
		}
		col := quote(f.Column)
		if op, ok := query.AsNumberOp(d[k]); ok {
			p := b.bind(op.Value)
			cur := column(alias, f)
			switch op.Kind {
			case query.OpSet:
				sets = append(sets, col+" = "+p)
			case query.OpIncrement:
				sets = append(sets, col+" = "+cur+" + "+p)
			case query.OpDecrement:
				sets = append(sets, col+" = "+cur+" - "+p)
			case query.OpMultiply:
				sets = append(sets, col+" = "+cur+" * "+p)
			case query.OpDivide:
				sets = append(sets, col+" = "+cur+" / "+p)
			}
			continue
		}
		sets = append(sets, col+" = "+b.value(f, d[k]))
	}
	if f := m.UpdatedAtField(); f != nil {
		if _, ok := d[f.Name]; !ok {
			sets = append(sets, quote(f.Column)+" = "+b.value(f, c.now().UTC()))
		}
	}
	if len(sets) == 0 {
		id := m.ID()
		sets = append(sets, quote(id.Column)+" = "+column(alias, id))
	}
	return sets
}

func (c *Client) insertRow(ctx context.Context, m *schema.Model, d query.Data) (written, error) {
	b := &builder{}
	cols, vals := c.insertValues(b, m, d)
	sql := "INSERT INTO " + tableOf(m) + " AS t0 (" + cols + ") VALUES (" + vals + ")" + returning(m, "t0")
	rows, err := c.db.Query(ctx, sql, b.args...)
	ws, err := scanWritten(m, rows, err)
	if err != nil {
		return written{}, err
	}
	if len(ws) != 1 {
		return written{}, fmt.Errorf("postgres: insert into %s returned %d rows", m.Table, len(ws))
	}
	c.emitWritten(ctx, m, events.ActionCreate, ws)
	return ws[0], nil
}

// createNested inserts a row of m and runs the nested writes of d. Owners
// referenced by belongs-to relations are resolved first, owned rows after.
func (c *Client) createNested(ctx context.Context, m *schema.Model, d query.Data) (written, error) {
	scalars := query.Data{}
	type ownedWrite struct {
		rel *schema.Relation
		n   *query.Nested
	}
	var owned []ownedWrite
	for _, k := range d.Keys() {
		if _, ok := m.Field(k); ok {
			scalars[k] = d[k]
			continue
		}
		rel, ok := m.Relation(k)
		if !ok {
			continue
		}
		n, _ := query.AsNested(d[k])
		if n == nil {
			continue
		}
		if belongsTo(rel) {
			key, err := c.resolveOwner(ctx, rel, n)
			if err != nil {
				return written{}, err
			}
			scalars[rel.LocalField] = key
			continue
		}
		owned = append(owned, ownedWrite{rel, n})
	}
	w, err := c.insertRow(ctx, m, scalars)
	if err != nil {
		return written{}, err
	}
	for _, o := range owned {
		if err := c.writeOwned(ctx, o.rel, o.n, localKey(o.rel, scalars, w)); err != nil {
			return written{}, err
		}
	}
	return w, nil
}

func localKey(rel *schema.Relation, scalars query.Data, w written) string {
	if v, ok := scalars[rel.LocalField]; ok {
		return fmt.Sprint(deref(v))
	}
	return w.id
}

func (c *Client) resolveOwner(ctx context.Context, rel *schema.Relation, n *query.Nested) (string, error) {
	target := rel.TargetModel()
	if len(n.Connect) > 0 {
		foreign, _ := target.Field(rel.ForeignField)
		return c.lookup(ctx, target, foreign, n.Connect[0])
	}
	w, err := c.createNested(ctx, target, n.Create[0])
	return w.id, err
}

// lookup reads one column of the row matching a unique where.
func (c *Client) lookup(ctx context.Context, m *schema.Model, f *schema.Field, where query.Unique) (string, error) {
	b := &builder{}
	cond, err := b.where(m, "t0", where.Filter())
	if err != nil {
		return "", err
	}
	sql := "SELECT " + column("t0", f) + " FROM " + tableOf(m) + " t0 WHERE " + cond + " LIMIT 1"
	var v string
	if err := c.db.QueryRow(ctx, sql, b.args...).Scan(&v); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", dberr.NotFound(m.Name, "a nested connect")
		}
		return "", mapError(m, err)
	}
	return v, nil
}

// writeOwned creates or connects rows whose foreign key points at parentKey.
func (c *Client) writeOwned(ctx context.Context, rel *schema.Relation, n *query.Nested, parentKey string) error {
	target := rel.TargetModel()
	for _, row := range n.Create {
		row = row.Clone()
		row[rel.ForeignField] = parentKey
		if _, err := c.createNested(ctx, target, row); err != nil {
			return err
		}
	}
	for _, where := range n.Connect {
		ws, err := c.updateRows(ctx, target, where.Filter(), query.Data{rel.ForeignField: parentKey}, 0)
		if err != nil {
			return err
		}
		if len(ws) == 0 {
			return dberr.NotFound(target.Name, "a nested connect")
		}
	}
	return nil
}

// updateRows applies scalar data to the rows matching where, at most limit
// rows when limit is positive.
func (c *Client) updateRows(ctx context.Context, m *schema.Model, where query.Filter, d query.Data, limit int) ([]written, error) {
	b := &builder{}
	alias := b.alias()
	sets := c.assignments(b, m, alias, d)
	cond, err := c.limited(b, m, alias, where, limit)
	if err != nil {
		return nil, err
	}
	sql := "UPDATE " + tableOf(m) + " AS " + alias + " SET " + strings.Join(sets, ", ") + " WHERE " + cond + returning(m, alias)
	rows, err := c.db.Query(ctx, sql, b.args...)
	ws, err := scanWritten(m, rows, err)
	if err != nil {
		return nil, err
	}
	c.emitWritten(ctx, m, events.ActionUpdate, ws)
	return ws, nil
}

func (c *Client) deleteRows(ctx context.Context, m *schema.Model, where query.Filter, limit int) ([]written, error) {
	b := &builder{}
	alias := b.alias()
	cond, err := c.limited(b, m, alias, where, limit)
	if err != nil {
		return nil, err
	}
	sql := "DELETE FROM " + tableOf(m) + " AS " + alias + " WHERE " + cond + returning(m, alias)
	rows, err := c.db.Query(ctx, sql, b.args...)
	ws, err := scanWritten(m, rows, err)
	if err != nil {
		return nil, err
	}
	c.emitWritten(ctx, m, events.ActionDelete, ws)
	return ws, nil
}

// limited renders where, restricted to the first limit matching ids.
func (c *Client) limited(b *builder, m *schema.Model, alias string, where query.Filter, limit int) (string, error) {
	if limit <= 0 {
		return b.where(m, alias, where)
	}
	sub := b.alias()
	cond, err := b.where(m, sub, where)
	if err != nil {
		return "", err
	}
	id := m.ID()
	return column(alias, id) + " IN (SELECT " + column(sub, id) + " FROM " + tableOf(m) + " " + sub +
		" WHERE " + cond + " ORDER BY " + column(sub, id) + " LIMIT " + fmt.Sprint(limit) + ")", nil
}

// createMany inserts rows in one statement. Missing values use the column default.
func (c *Client) createMany(ctx context.Context, m *schema.Model, rows []query.Data, skipDuplicates bool) ([]written, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	var fields []*schema.Field
	for _, f := range m.Fields {
		present := f.Generate != nil || f.UpdatedAt
		for _, r := range rows {
			if _, ok := r[f.Name]; ok {
				present = true
				break
			}
		}
		if present {
			fields = append(fields, f)
		}
	}
	b := &builder{}
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = quote(f.Column)
	}
	tuples := make([]string, len(rows))
	for i, r := range rows {
		vals := make([]string, len(fields))
		for j, f := range fields {
			v, ok := r[f.Name]
			switch {
			case ok:
				vals[j] = b.value(f, v)
			case f.Generate != nil:
				vals[j] = b.value(f, f.Generate())
			case f.UpdatedAt:
				vals[j] = b.value(f, c.now().UTC())
			default:
				vals[j] = "DEFAULT"
			}
		}
		tuples[i] = "(" + strings.Join(vals, ", ") + ")"
	}
	sql := "INSERT INTO " + tableOf(m) + " AS t0 (" + strings.Join(cols, ", ") + ") VALUES " + strings.Join(tuples, ", ")
	if skipDuplicates {
		sql += " ON CONFLICT DO NOTHING"
	}
	sql += returning(m, "t0")
	res, err := c.db.Query(ctx, sql, b.args...)
	ws, err := scanWritten(m, res, err)
	if err != nil {
		return nil, err
	}
	c.emitWritten(ctx, m, events.ActionCreate, ws)
	return ws, nil
}

// upsertNative runs INSERT ... ON CONFLICT DO UPDATE on the conflict column.
func (c *Client) upsertNative(ctx context.Context, m *schema.Model, conflict *schema.Field, create, update query.Data) (written, error) {
	b := &builder{}
	cols, vals := c.insertValues(b, m, create)
	var sets []string
	if len(update) == 0 {
		id := m.ID()
		sets = []string{quote(id.Column) + " = " + column("t0", id)}
	} else {
		sets = c.assignments(b, m, "t0", update)
	}
	sql := "INSERT INTO " + tableOf(m) + " AS t0 (" + cols + ") VALUES (" + vals + ")" +
		" ON CONFLICT (" + quote(conflict.Column) + ") DO UPDATE SET " + strings.Join(sets, ", ") +
		returning(m, "t0") + ", (t0.xmax = 0) AS inserted"

	var (
		w        written
		inserted bool
		dest     = []any{&w.id}
	)
	if m.OwnerField() != nil {
		dest = append(dest, &w.owner)
	}
	dest = append(dest, &inserted)
	if err := c.db.QueryRow(ctx, sql, b.args...).Scan(dest...); err != nil {
		return written{}, mapError(m, err)
	}
	if m.OwnerField() == nil {
		w.owner = w.id
	}
	action := events.ActionUpdate
	if inserted {
		action = events.ActionCreate
	}
	c.emitWritten(ctx, m, action, []written{w})
	return w, nil
}

// conflictField returns the unique field an upsert can use as ON CONFLICT
// target: the where must name exactly one unique field, with the same value
// the create payload carries.
func conflictField(m *schema.Model, where query.Unique, create query.Data) *schema.Field {
	if len(where) != 1 {
		return nil
	}
	for k, v := range where {
		f, ok := m.Field(k)
		if !ok || !(f.IsID || f.IsUnique) {
			return nil
		}
		cv, ok := create[k]
		if !ok || fmt.Sprint(deref(cv)) != fmt.Sprint(deref(v)) {
			return nil
		}
		return f
	}
	return nil
}
