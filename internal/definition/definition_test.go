package definition_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devplatform/modelgraph/internal/definition"
	"github.com/devplatform/modelgraph/internal/orm"
)

func TestRegisterRequiresModel(t *testing.T) {
	reg := definition.NewRegistry()
	err := reg.Register(&definition.Definition{Name: "Ghost"})
	assert.ErrorIs(t, err, definition.ErrMissingModel)
}

func TestRegisterDefaultsNameAndRejectsDuplicates(t *testing.T) {
	reg := definition.NewRegistry()
	m := &orm.Model{Name: "User", Table: "users"}

	def := &definition.Definition{Model: m}
	require.NoError(t, reg.Register(def))
	assert.Equal(t, "User", def.Name)

	got, ok := reg.Get("User")
	require.True(t, ok)
	assert.Same(t, def, got)
	assert.Same(t, def, reg.ForModel(m))

	err := reg.Register(&definition.Definition{Model: m})
	assert.ErrorIs(t, err, definition.ErrDuplicate)
}

func TestForModelCreatesImplicitDefinition(t *testing.T) {
	reg := definition.NewRegistry()
	m := &orm.Model{Name: "Tag", Table: "tags"}

	def := reg.ForModel(m)
	assert.Equal(t, "Tag", def.Name)
	assert.Nil(t, def.Fetchable)
	assert.Same(t, def, reg.ForModel(m))
	assert.Len(t, reg.All(), 1)
}

func TestEnabledOperations(t *testing.T) {
	plain := &definition.Definition{Model: &orm.Model{Name: "Tag"}}
	assert.Equal(t, "list|view|store|batch|drop", plain.Enabled().String())
	assert.False(t, plain.Restoreable())

	soft := &definition.Definition{Model: &orm.Model{Name: "User", SoftDeletes: true}}
	assert.True(t, soft.Enabled().Has(definition.OpRestore))
	assert.True(t, soft.Restoreable())

	readOnly := &definition.Definition{
		Model:      &orm.Model{Name: "Tag"},
		Operations: definition.OpList | definition.OpView | definition.OpRestore,
	}
	assert.Equal(t, "list|view", readOnly.Enabled().String())
}
