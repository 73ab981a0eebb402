package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/googlearchive/science-journal-ios/errors"
)

func TestCatalog_Size(t *testing.T) {
	assert.Equal(t, 26, Len())
	assert.Len(t, All(), Len())
	assert.Len(t, Names(), Len())
}

func TestCatalog_DeclarationOrder(t *testing.T) {
	names := Names()
	require.NotEmpty(t, names)

	assert.Equal(t, BasicSensorAppearance, names[0])
	assert.Equal(t, Version, names[len(names)-1])

	for i, schema := range All() {
		assert.Equal(t, i, schema.Index)
		assert.Equal(t, names[i], schema.Name)
	}
}

func TestCatalog_NamesAreUnique(t *testing.T) {
	seen := make(map[Name]bool)
	for _, name := range Names() {
		assert.False(t, seen[name], "duplicate schema %s", name)
		seen[name] = true
	}
}

func TestCatalog_AllReturnsCopy(t *testing.T) {
	all := All()
	all[0].Name = "Mutated"

	assert.Equal(t, BasicSensorAppearance, All()[0].Name)
}

func TestCatalog_Lookup(t *testing.T) {
	schema, ok := Lookup(Trial)
	require.True(t, ok)
	assert.Equal(t, Trial, schema.Name)
	assert.Equal(t, "goosci.Trial", string(schema.FullName(DefaultPackage)))
	assert.Equal(t, "Trial", string(schema.FullName("")))

	_, ok = Lookup("Notebook")
	assert.False(t, ok)
	assert.True(t, Contains(SensorTriggerLabelValue))
	assert.False(t, Contains("sensor"))
}

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    Name
		wantErr bool
	}{
		{"Experiment", Experiment, false},
		{"LocalSyncStatus", LocalSyncStatus, false},
		{"experiment", "", true},
		{"", "", true},
		{"Notebook", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errors.ErrUnknownSchema)
				assert.True(t, errors.IsInvalid(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSet_Without(t *testing.T) {
	set := Without(Trial, Label, "NotASchema")

	assert.Equal(t, Len()-2, set.Len())
	assert.False(t, set.Contains(Trial))
	assert.False(t, set.Contains(Label))
	assert.True(t, set.Contains(Experiment))

	// Indices keep their position in the full catalog.
	schema, ok := set.Lookup(Version)
	require.True(t, ok)
	assert.Equal(t, Len()-1, schema.Index)

	// The default catalog is untouched.
	assert.True(t, Contains(Trial))
	assert.Equal(t, 26, Len())
}

func TestSet_Zero(t *testing.T) {
	var set Set
	assert.Equal(t, 0, set.Len())
	assert.Empty(t, set.All())
	assert.False(t, set.Contains(Trial))
}
