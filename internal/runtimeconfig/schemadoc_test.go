package runtimeconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/internal/errs"
	"github.com/strata-db/strata/internal/index"
	"github.com/strata-db/strata/internal/schema"
)

const sampleSchemaYAML = `
version:
  major: 1
  minor: 2
entities:
  - name: user
    fields: [name, email]
    indexes:
      - name: by_email
        keyPaths: [email]
        kind: scalar
        unique: true
  - name: order
    fields: [total]
`

func TestParseSchemaDecodesEntitiesAndIndexes(t *testing.T) {
	sch, err := ParseSchema([]byte(sampleSchemaYAML))
	require.NoError(t, err)

	assert.Equal(t, schema.Version{Major: 1, Minor: 2}, sch.Version)
	require.Len(t, sch.Entities, 2)

	user, ok := sch.Entity("user")
	require.True(t, ok)
	assert.Equal(t, []string{"name", "email"}, user.Fields)
	require.Len(t, user.Indexes, 1)
	assert.Equal(t, "by_email", user.Indexes[0].Name)
	assert.Equal(t, index.KindScalar, user.Indexes[0].Kind)
	assert.True(t, user.Indexes[0].Options.Unique)

	_, ok = sch.Entity("order")
	assert.True(t, ok)
}

func TestParseSchemaInvalidYAMLFails(t *testing.T) {
	_, err := ParseSchema([]byte("not: valid: yaml: at: all:"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)
}
