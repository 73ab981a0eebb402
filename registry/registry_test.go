package registry_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/googlearchive/science-journal-ios/catalog"
	pkgerrors "github.com/googlearchive/science-journal-ios/errors"
	"github.com/googlearchive/science-journal-ios/metric"
	"github.com/googlearchive/science-journal-ios/registry"
	fixtures "github.com/googlearchive/science-journal-ios/testutil"
)

func factoryFor(t *testing.T, bundle *catalog.Bundle, name catalog.Name) registry.MessageFactory {
	t.Helper()
	mt, ok := bundle.Type(name)
	require.True(t, ok)
	return func() proto.Message { return mt.New().Interface() }
}

func TestRegister_Success(t *testing.T) {
	bundle := fixtures.Bundle(t, catalog.Default())
	r := registry.New()

	err := r.Register(&registry.Registration{
		Schema:      catalog.Trial,
		Description: "A recording run inside an experiment",
		Factory:     factoryFor(t, bundle, catalog.Trial),
	})
	require.NoError(t, err)

	reg, ok := r.Registration(catalog.Trial)
	require.True(t, ok)
	assert.Equal(t, catalog.Trial, reg.Schema)
	assert.Equal(t, "goosci.Trial", string(reg.FullName))
	assert.Nil(t, reg.Factory, "copies must not expose the factory")
	assert.Equal(t, 1, r.Len())
}

func TestRegister_Validation(t *testing.T) {
	bundle := fixtures.Bundle(t, catalog.Default())

	tests := []struct {
		name    string
		reg     *registry.Registration
		wantErr error
	}{
		{"nil registration", nil, pkgerrors.ErrInvalidConfig},
		{"unknown schema", &registry.Registration{Schema: "Notebook", Factory: factoryFor(t, bundle, catalog.Trial)}, pkgerrors.ErrUnknownSchema},
		{"nil factory", &registry.Registration{Schema: catalog.Trial}, pkgerrors.ErrInvalidConfig},
		{"factory returns other schema", &registry.Registration{Schema: catalog.Trial, Factory: factoryFor(t, bundle, catalog.Label)}, pkgerrors.ErrSchemaMismatch},
		{"factory returns unrelated type", &registry.Registration{
			Schema:  catalog.Caption,
			Factory: func() proto.Message { return &wrapperspb.StringValue{} },
		}, pkgerrors.ErrSchemaMismatch},
		{"declared full name differs", &registry.Registration{
			Schema:   catalog.Trial,
			FullName: "other.Trial",
			Factory:  factoryFor(t, bundle, catalog.Trial),
		}, pkgerrors.ErrSchemaMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := registry.New()
			err := r.Register(tt.reg)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, pkgerrors.IsInvalid(err))
			assert.Equal(t, 0, r.Len())
		})
	}
}

func TestRegister_RestrictedCatalog(t *testing.T) {
	bundle := fixtures.Bundle(t, catalog.Default())
	r := registry.New(registry.WithCatalog(catalog.Without(catalog.Trial)))

	err := r.Register(&registry.Registration{Schema: catalog.Trial, Factory: factoryFor(t, bundle, catalog.Trial)})
	assert.ErrorIs(t, err, pkgerrors.ErrUnknownSchema)
}

func TestRegister_Idempotent(t *testing.T) {
	bundle := fixtures.Bundle(t, catalog.Default())
	r := registry.New()

	require.NoError(t, r.RegisterBundle(bundle))
	require.NoError(t, r.RegisterBundle(bundle), "second inclusion must not fail")
	assert.Equal(t, catalog.Len(), r.Len())
}

func TestRegister_DuplicateDifferentType(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.RegisterBundle(fixtures.Bundle(t, catalog.Default())))

	// Same full name, different message definition.
	other := fixtures.Bundle(t, catalog.Default(), fixtures.WithFixtureField())
	err := r.Register(&registry.Registration{Schema: catalog.Trial, Factory: factoryFor(t, other, catalog.Trial)})
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrDuplicateSchema)

	reg, _ := r.Registration(catalog.Trial)
	assert.Equal(t, "goosci.Trial", string(reg.FullName))
}

func TestRegister_ForeignPackage(t *testing.T) {
	other := fixtures.Bundle(t, catalog.Default(), fixtures.WithPackage("sj.v1"))

	t.Run("single registration", func(t *testing.T) {
		r := registry.New()
		err := r.Register(&registry.Registration{Schema: catalog.Trial, Factory: factoryFor(t, other, catalog.Trial)})
		require.Error(t, err)
		assert.ErrorIs(t, err, pkgerrors.ErrSchemaMismatch)
		assert.Contains(t, err.Error(), "sj.v1.Trial")
		assert.Equal(t, 0, r.Len())
	})

	t.Run("bundle", func(t *testing.T) {
		r := registry.New()
		err := r.RegisterBundle(other)
		require.Error(t, err)
		assert.ErrorIs(t, err, pkgerrors.ErrSchemaMismatch)
		assert.Equal(t, 0, r.Len())
	})

	t.Run("matching registry package", func(t *testing.T) {
		r := registry.New(registry.WithPackage("sj.v1"))
		require.NoError(t, r.RegisterBundle(other))
		assert.Equal(t, "sj.v1", r.Package())
		assert.NoError(t, r.Verify())

		reg, ok := r.Registration(catalog.Trial)
		require.True(t, ok)
		assert.Equal(t, "sj.v1.Trial", string(reg.FullName))
	})
}

func TestRegisterBundle_Nil(t *testing.T) {
	err := registry.New().RegisterBundle(nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsFatal(err))
}

func TestCreate(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.RegisterBundle(fixtures.Bundle(t, catalog.Default())))

	msg := r.Create(catalog.SensorLayout)
	require.NotNil(t, msg)
	assert.Equal(t, "goosci.SensorLayout", string(msg.ProtoReflect().Descriptor().FullName()))
	assert.NotSame(t, msg, r.Create(catalog.SensorLayout))

	assert.Nil(t, r.Create("Notebook"))
}

func TestList_CatalogOrder(t *testing.T) {
	r := registry.New()
	bundle := fixtures.Bundle(t, catalog.Default())

	// Register out of order.
	for _, name := range []catalog.Name{catalog.Version, catalog.Trial, catalog.BasicSensorAppearance} {
		require.NoError(t, r.Register(&registry.Registration{Schema: name, Factory: factoryFor(t, bundle, name)}))
	}

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, catalog.BasicSensorAppearance, list[0].Schema)
	assert.Equal(t, catalog.Trial, list[1].Schema)
	assert.Equal(t, catalog.Version, list[2].Schema)
	for _, reg := range list {
		assert.Nil(t, reg.Factory)
	}
}

func TestVerify(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.RegisterBundle(fixtures.Bundle(t, catalog.Without(catalog.Trial))))

	assert.Equal(t, []catalog.Name{catalog.Trial}, r.Missing())

	err := r.Verify()
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrUnresolvedSchema)
	assert.Contains(t, err.Error(), "Trial")

	var unresolved *catalog.UnresolvedError
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, []catalog.Name{catalog.Trial}, unresolved.Missing)
	assert.Equal(t, catalog.DefaultPackage, unresolved.Package)
	assert.Contains(t, err.Error(), "goosci.Trial")

	require.NoError(t, r.RegisterBundle(fixtures.Bundle(t, catalog.Default())))
	assert.NoError(t, r.Verify())
	assert.Empty(t, r.Missing())
}

func TestMetricsRecorded(t *testing.T) {
	m := metric.NewMetrics()
	r := registry.New(registry.WithMetrics(m))

	require.NoError(t, r.RegisterBundle(fixtures.Bundle(t, catalog.Without(catalog.Trial))))
	r.Create(catalog.Label)
	r.Create(catalog.Trial)
	_ = r.Verify()

	assert.Equal(t, float64(catalog.Len()-1), testutil.ToFloat64(m.SchemasRegistered))
	assert.Equal(t, float64(catalog.Len()-1), testutil.ToFloat64(m.Registrations.WithLabelValues("new")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Lookups.WithLabelValues("Label", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Lookups.WithLabelValues("Trial", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UnresolvedSchemas.WithLabelValues("Trial")))
}

func TestConcurrentAccess(t *testing.T) {
	r := registry.New()
	bundle := fixtures.Bundle(t, catalog.Default())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, name := range catalog.Names() {
				mt, _ := bundle.Type(name)
				_ = r.Register(&registry.Registration{
					Schema:  name,
					Factory: func() proto.Message { return mt.New().Interface() },
				})
				_ = r.Create(name)
				_ = r.List()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, catalog.Len(), r.Len())
	assert.NoError(t, r.Verify())
}
