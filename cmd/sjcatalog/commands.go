package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"google.golang.org/protobuf/reflect/protoregistry"

	"github.com/googlearchive/science-journal-ios/catalog"
	"github.com/googlearchive/science-journal-ios/catalogstore"
	"github.com/googlearchive/science-journal-ios/codec"
	"github.com/googlearchive/science-journal-ios/config"
	"github.com/googlearchive/science-journal-ios/descriptorset"
	pkgerrors "github.com/googlearchive/science-journal-ios/errors"
	"github.com/googlearchive/science-journal-ios/metric"
	"github.com/googlearchive/science-journal-ios/natsclient"
	"github.com/googlearchive/science-journal-ios/registry"
	"github.com/googlearchive/science-journal-ios/service"
	"github.com/googlearchive/science-journal-ios/version"
)

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"list":    runList,
	"version": runVersion,
	"check":   runCheck,
	"export":  runExport,
	"convert": runConvert,
	"serve":   runServe,
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func runList(_ context.Context, a *app, args []string) error {
	flags, err := parseListFlags(args, listFlags{Package: a.cfg.Catalog.Package}, a.stderr)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	for _, schema := range catalog.All() {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\n", schema.Index, schema.Name, schema.FullName(flags.Package))
	}
	return tw.Flush()
}

func runVersion(_ context.Context, a *app, _ []string) error {
	_, err := fmt.Fprintln(a.stdout, version.Current().Text())
	return err
}

// runCheck binds the catalog against a descriptor set and fails naming
// every schema the set does not provide.
func runCheck(_ context.Context, a *app, args []string) error {
	flags, err := parseCheckFlags(args, checkFlags{
		Descriptors: a.cfg.Catalog.DescriptorSet,
		Package:     a.cfg.Catalog.Package,
	}, a.stderr)
	if err != nil {
		return err
	}

	types, err := descriptorset.LoadTypes(flags.Descriptors)
	if err != nil {
		return fmt.Errorf("load descriptors: %w", err)
	}

	bundle, err := catalog.Bind(types, catalog.WithPackage(flags.Package))
	if err != nil {
		var unresolved *catalog.UnresolvedError
		if stderrors.As(err, &unresolved) {
			for _, name := range unresolved.Missing {
				_, _ = fmt.Fprintf(a.stdout, "MISSING\t%s\n", catalog.Schema{Name: name}.FullName(flags.Package))
			}
		}
		return err
	}

	_, err = fmt.Fprintf(a.stdout, "OK\t%d schemas resolved in %s (%s)\n",
		len(bundle.Schemas()), bundle.Package(), bundle.Version().String)
	return err
}

func runExport(_ context.Context, a *app, args []string) error {
	flags, err := parseExportFlags(args, exportFlags{
		Format:  "json",
		Package: a.cfg.Catalog.Package,
	}, a.stderr)
	if err != nil {
		return err
	}

	manifest := catalog.NewManifest(catalog.Default(), flags.Package)
	if err := manifest.Validate(); err != nil {
		return fmt.Errorf("validate manifest: %w", err)
	}

	var data []byte
	switch flags.Format {
	case "yaml":
		data, err = manifest.YAML()
	default:
		data, err = manifest.JSON()
	}
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	if flags.Out == "" {
		_, err = a.stdout.Write(data)
		return err
	}
	if err := os.WriteFile(flags.Out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", flags.Out, err)
	}
	a.logger.Info("Manifest exported", "path", flags.Out, "format", flags.Format, "schemas", len(manifest.Schemas))
	return nil
}

func runConvert(_ context.Context, a *app, args []string) error {
	flags, err := parseConvertFlags(args, convertFlags{
		Descriptors: a.cfg.Catalog.DescriptorSet,
		Package:     a.cfg.Catalog.Package,
	}, a.stderr)
	if err != nil {
		return err
	}

	types, err := descriptorset.LoadTypes(flags.Descriptors)
	if err != nil {
		return fmt.Errorf("load descriptors: %w", err)
	}
	reg, err := newRegistry(types, flags.Package, nil, a)
	if err != nil {
		return err
	}

	in := a.stdin
	if flags.In != "" {
		f, err := os.Open(flags.In)
		if err != nil {
			return fmt.Errorf("open %s: %w", flags.In, err)
		}
		defer f.Close()
		in = f
	}
	data, err := io.ReadAll(io.LimitReader(in, service.MaxPayloadSize+1))
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}
	if len(data) > service.MaxPayloadSize {
		return fmt.Errorf("%w: payload exceeds %d bytes", pkgerrors.ErrInvalidData, service.MaxPayloadSize)
	}

	c := codec.New(reg)
	msg, err := c.Unmarshal(flags.Schema, data, flags.From)
	if err != nil {
		return err
	}
	out, err := c.Marshal(msg, flags.To)
	if err != nil {
		return err
	}
	_, err = a.stdout.Write(out)
	return err
}

// newRegistry registers every schema types provides. Schemas the types do
// not provide are logged and left unregistered.
func newRegistry(types *protoregistry.Types, pkg string, metrics *metric.MetricsRegistry, a *app) (*registry.MessageRegistry, error) {
	opts := []registry.Option{registry.WithLogger(a.logger), registry.WithPackage(pkg)}
	if metrics != nil {
		opts = append(opts, registry.WithMetrics(metrics.CoreMetrics()))
	}
	reg := registry.New(opts...)

	set := catalog.Default()
	bundle, err := set.Bind(types, catalog.WithPackage(pkg))
	if err != nil {
		var unresolved *catalog.UnresolvedError
		if !stderrors.As(err, &unresolved) {
			return nil, err
		}
		a.logger.Warn("Descriptor set is incomplete", "missing", unresolved.Missing)
		if bundle, err = set.Without(unresolved.Missing...).Bind(types, catalog.WithPackage(pkg)); err != nil {
			return nil, err
		}
	}

	if err := reg.RegisterBundle(bundle); err != nil {
		return nil, fmt.Errorf("register bundle: %w", err)
	}
	return reg, nil
}

func runServe(ctx context.Context, a *app, _ []string) error {
	cfg := a.cfg
	metrics := metric.NewMetricsRegistry()

	types := new(protoregistry.Types)
	if cfg.Catalog.DescriptorSet != "" {
		loaded, err := descriptorset.LoadTypes(cfg.Catalog.DescriptorSet)
		if err != nil {
			return fmt.Errorf("load descriptors: %w", err)
		}
		types = loaded
	} else {
		a.logger.Warn("No descriptor set configured, serving an empty registry")
	}

	reg, err := newRegistry(types, cfg.Catalog.Package, metrics, a)
	if err != nil {
		return err
	}

	deps := service.Dependencies{
		Registry: reg,
		Metrics:  metrics,
		Logger:   a.logger,
	}

	if cfg.NATS.Enabled() {
		client, store, err := connectStore(ctx, cfg, metrics, a)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.Close(); err != nil {
				a.logger.Warn("Failed to close catalog store", "error", err)
			}
			if err := client.Close(closeCtx); err != nil {
				a.logger.Warn("Failed to close NATS client", "error", err)
			}
		}()
		deps.NATS = client
		deps.Store = store
	}

	srv, err := service.NewCatalogServer(service.Config{
		Addr:            cfg.HTTP.Addr,
		Package:         cfg.Catalog.Package,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout.Std(),
		ConvertRate:     cfg.HTTP.ConvertRate,
	}, deps)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	a.logger.Info("Science Journal catalog ready", "addr", srv.Addr(), "schemas", reg.Len())

	<-ctx.Done()
	a.logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout.Std()+time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	a.logger.Info("Science Journal catalog shutdown complete")
	return nil
}

func connectStore(
	ctx context.Context,
	cfg *config.Config,
	metrics *metric.MetricsRegistry,
	a *app,
) (*natsclient.Client, *catalogstore.Store, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithLogger(a.logger),
		natsclient.WithClientName(appName),
		natsclient.WithTimeout(cfg.NATS.Timeout.Std()),
	}
	switch {
	case cfg.NATS.Token != "":
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	case cfg.NATS.Username != "":
		opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}

	client, err := natsclient.NewClient(cfg.NATS.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create NATS client: %w", err)
	}

	a.logger.Info("Connecting to NATS")
	if err := client.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}

	store, err := catalogstore.Open(ctx, client, cfg.NATS.Bucket,
		catalogstore.WithLogger(a.logger),
		catalogstore.WithMetrics(metrics.CoreMetrics()),
		catalogstore.WithCacheTTL(time.Minute))
	if err != nil {
		_ = client.Close(ctx)
		return nil, nil, fmt.Errorf("open catalog store: %w", err)
	}

	return client, store, nil
}
