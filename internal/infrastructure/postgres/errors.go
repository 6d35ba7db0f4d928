package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/oksasatya/biolink/internal/domain/dberr"
	"github.com/oksasatya/biolink/internal/domain/schema"
)

var pgCodes = map[string]string{
	"22001": dberr.CodeValueTooLong,
	"23505": dberr.CodeUnique,
	"23503": dberr.CodeForeignKey,
	"23502": dberr.CodeNullConstraint,
	"40001": dberr.CodeWriteConflict,
	"40P01": dberr.CodeWriteConflict,
}

// mapError turns driver errors into KnownRequestError. Other errors pass through.
func mapError(m *schema.Model, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	code, ok := pgCodes[pgErr.Code]
	if !ok {
		return err
	}
	ke := &dberr.KnownRequestError{Code: code, Message: pgErr.Message, Meta: map[string]any{}, Err: err}
	if m != nil {
		ke.Model = m.Name
	}
	switch code {
	case dberr.CodeUnique:
		ke.Message = "unique constraint failed"
		if target := constraintFields(m, pgErr.ConstraintName); len(target) > 0 {
			ke.Meta["target"] = target
		}
	case dberr.CodeForeignKey:
		ke.Message = "foreign key constraint failed"
		ke.Meta["field_name"] = pgErr.ConstraintName
	case dberr.CodeNullConstraint:
		ke.Message = "null constraint violation"
		ke.Meta["constraint"] = fieldName(m, pgErr.ColumnName)
	case dberr.CodeValueTooLong:
		ke.Meta["column_name"] = fieldName(m, pgErr.ColumnName)
	case dberr.CodeWriteConflict:
		ke.Message = "transaction failed due to a write conflict or a deadlock"
	}
	return ke
}

// constraintFields recovers field names from a constraint such as users_email_key.
func constraintFields(m *schema.Model, constraint string) []string {
	if m == nil || constraint == "" {
		return nil
	}
	if strings.HasSuffix(constraint, "_pkey") {
		return []string{m.ID().Name}
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(constraint, m.Table+"_"), "_key")
	var out []string
	for _, f := range m.Fields {
		if f.Column == inner {
			out = append(out, f.Name)
		}
	}
	return out
}

func fieldName(m *schema.Model, column string) string {
	if m != nil {
		for _, f := range m.Fields {
			if f.Column == column {
				return f.Name
			}
		}
	}
	return column
}
