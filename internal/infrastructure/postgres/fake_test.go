package postgres

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// result is the canned answer to one statement.
type result struct {
	cols []string
	rows [][]any
	tag  string
	err  error
}

type call struct {
	sql  string
	args []any
}

// fakeDB records statements and answers them from a queue, or from
// respond when set. Relation loading may run concurrently, so tests that
// include several relations should use respond.
type fakeDB struct {
	mu      sync.Mutex
	calls   []call
	queue   []result
	respond func(sql string, args []any) result

	// block makes every statement wait for its context to end.
	block bool

	begins    int
	commits   int
	rollbacks int
	beginErr  error
	commitErr error
	rbErr     error
}

func (f *fakeDB) next(sql string, args []any) result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{sql: sql, args: args})
	if f.respond != nil {
		return f.respond(sql, args)
	}
	if len(f.queue) == 0 {
		return result{}
	}
	r := f.queue[0]
	f.queue = f.queue[1:]
	return r
}

func (f *fakeDB) push(rs ...result) { f.queue = append(f.queue, rs...) }

func (f *fakeDB) sqls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.sql
	}
	return out
}

func (f *fakeDB) last() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func (f *fakeDB) wait(ctx context.Context, r result) result {
	if f.block {
		<-ctx.Done()
		return result{err: ctx.Err()}
	}
	return r
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r := f.wait(ctx, f.next(sql, args))
	return pgconn.NewCommandTag(r.tag), r.err
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	r := f.wait(ctx, f.next(sql, args))
	if r.err != nil {
		return nil, r.err
	}
	return &fakeRows{cols: r.cols, rows: r.rows}, nil
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	r := f.wait(ctx, f.next(sql, args))
	return &fakeRow{rows: &fakeRows{cols: r.cols, rows: r.rows}, err: r.err}
}

func (f *fakeDB) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	f.begins++
	return &fakeTx{db: f}, nil
}

// fakeTx runs statements on the parent fakeDB. Methods the client never
// calls are left to the embedded nil interface.
type fakeTx struct {
	pgx.Tx
	db *fakeDB
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.db.Exec(ctx, sql, args...)
}

func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return t.db.Query(ctx, sql, args...)
}

func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return t.db.QueryRow(ctx, sql, args...)
}

func (t *fakeTx) Commit(context.Context) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.commits++
	return t.db.commitErr
}

func (t *fakeTx) Rollback(context.Context) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.rollbacks++
	return t.db.rbErr
}

type fakeRows struct {
	cols []string
	rows [][]any
	i    int
}

func (r *fakeRows) Close()     {}
func (r *fakeRows) Err() error { return nil }

func (r *fakeRows) CommandTag() pgconn.CommandTag {
	return pgconn.NewCommandTag("SELECT " + strconv.Itoa(len(r.rows)))
}

func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	out := make([]pgconn.FieldDescription, len(r.cols))
	for i, c := range r.cols {
		out[i] = pgconn.FieldDescription{Name: c}
	}
	return out
}

func (r *fakeRows) Next() bool {
	if r.i >= len(r.rows) {
		return false
	}
	r.i++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.i-1]
	if len(dest) != len(row) {
		return fmt.Errorf("fake rows: %d destinations for %d values", len(dest), len(row))
	}
	for i := range dest {
		if err := assign(dest[i], row[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeRows) Values() ([]any, error) { return r.rows[r.i-1], nil }
func (r *fakeRows) RawValues() [][]byte    { return nil }
func (r *fakeRows) Conn() *pgx.Conn        { return nil }

type fakeRow struct {
	rows *fakeRows
	err  error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if !r.rows.Next() {
		return pgx.ErrNoRows
	}
	return r.rows.Scan(dest...)
}

func assign(dest, v any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("fake rows: destination %T is not a pointer", dest)
	}
	return setValue(dv.Elem(), v)
}

func setValue(dst reflect.Value, v any) error {
	if v == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	if dst.Kind() == reflect.Pointer {
		p := reflect.New(dst.Type().Elem())
		if err := setValue(p.Elem(), v); err != nil {
			return err
		}
		dst.Set(p)
		return nil
	}
	if dst.Kind() == reflect.Interface {
		dst.Set(reflect.ValueOf(v))
		return nil
	}
	sv := reflect.ValueOf(v)
	if !sv.Type().ConvertibleTo(dst.Type()) {
		return fmt.Errorf("fake rows: cannot scan %T into %s", v, dst.Type())
	}
	dst.Set(sv.Convert(dst.Type()))
	return nil
}

// userCols and userRow build SELECT results for the User table.
var userCols = []string{
	"id", "user_name", "name", "email", "password", "image", "bio", "location", "text_color",
	"background_image", "background_video", "audio_url", "cursor_url", "profile_opacity",
	"profile_blur", "views", "glow_username", "glow_socials", "monochrome_icons", "role",
	"email_verified", "created_at", "updated_at",
}

func userRow(id, userName, email string, views int) []any {
	return []any{
		id, userName, nil, email, "hash", nil, nil, nil, "#ffffff",
		nil, nil, nil, nil, 100, 0, views, false, false, false, "USER",
		nil, fixedNow, fixedNow,
	}
}

func countResult(n int64) result {
	return result{cols: []string{"count"}, rows: [][]any{{n}}}
}

// withoutPassword drops the password column of a user result.
func withoutPassword(cols []string, rows ...[]any) result {
	out := result{}
	for _, c := range cols {
		if c != "password" {
			out.cols = append(out.cols, c)
		}
	}
	for _, row := range rows {
		var kept []any
		for i, v := range row {
			if cols[i] != "password" {
				kept = append(kept, v)
			}
		}
		out.rows = append(out.rows, kept)
	}
	return out
}

func contains(sql, part string) bool { return strings.Contains(sql, part) }
