package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/biolink/internal/domain/dberr"
	"github.com/oksasatya/biolink/internal/domain/schema"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name  string
		model *schema.Model
		err   *pgconn.PgError
		code  string
		meta  map[string]any
	}{
		{
			name:  "unique email",
			model: schema.User,
			err:   &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"},
			code:  dberr.CodeUnique,
			meta:  map[string]any{"target": []string{"email"}},
		},
		{
			name:  "primary key",
			model: schema.Link,
			err:   &pgconn.PgError{Code: "23505", ConstraintName: "links_pkey"},
			code:  dberr.CodeUnique,
			meta:  map[string]any{"target": []string{"id"}},
		},
		{
			name:  "unique owner",
			model: schema.Cosmetic,
			err:   &pgconn.PgError{Code: "23505", ConstraintName: "cosmetics_user_id_key"},
			code:  dberr.CodeUnique,
			meta:  map[string]any{"target": []string{"userId"}},
		},
		{
			name:  "foreign key",
			model: schema.Label,
			err:   &pgconn.PgError{Code: "23503", ConstraintName: "labels_user_id_fkey"},
			code:  dberr.CodeForeignKey,
			meta:  map[string]any{"field_name": "labels_user_id_fkey"},
		},
		{
			name:  "not null",
			model: schema.User,
			err:   &pgconn.PgError{Code: "23502", ColumnName: "user_name"},
			code:  dberr.CodeNullConstraint,
			meta:  map[string]any{"constraint": "userName"},
		},
		{
			name:  "too long",
			model: schema.Statusbar,
			err:   &pgconn.PgError{Code: "22001", ColumnName: "status_text"},
			code:  dberr.CodeValueTooLong,
			meta:  map[string]any{"column_name": "statusText"},
		},
		{
			name: "deadlock",
			err:  &pgconn.PgError{Code: "40P01"},
			code: dberr.CodeWriteConflict,
			meta: map[string]any{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError(tt.model, tt.err)
			var ke *dberr.KnownRequestError
			require.ErrorAs(t, err, &ke)
			assert.Equal(t, tt.code, ke.Code)
			assert.Equal(t, tt.meta, ke.Meta)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestMapErrorPassthrough(t *testing.T) {
	assert.NoError(t, mapError(schema.User, nil))

	plain := errors.New("conn closed")
	assert.Same(t, plain, mapError(schema.User, plain))

	unknown := &pgconn.PgError{Code: "42P01"}
	assert.Equal(t, error(unknown), mapError(schema.User, unknown))
}

func TestConstraintFields(t *testing.T) {
	assert.Equal(t, []string{"email"}, constraintFields(schema.User, "users_email_key"))
	assert.Equal(t, []string{"id"}, constraintFields(schema.User, "users_pkey"))
	assert.Nil(t, constraintFields(schema.User, "users_nope_key"))
	assert.Nil(t, constraintFields(nil, "users_email_key"))
}
