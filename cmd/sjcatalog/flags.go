package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/googlearchive/science-journal-ios/catalog"
	"github.com/googlearchive/science-journal-ios/codec"
)

// CLIConfig holds the global command-line configuration
type CLIConfig struct {
	ConfigPath  string
	LogLevel    string
	LogFormat   string
	ShowVersion bool
	ShowHelp    bool
	Command     string
	Args        []string
}

func parseFlags(args []string, stderr io.Writer) (*CLIConfig, *flag.FlagSet, error) {
	cfg := &CLIConfig{}

	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&cfg.ConfigPath, "config",
		getEnv("SJ_CONFIG", ""),
		"Path to JSON configuration file (env: SJ_CONFIG)")
	fs.StringVar(&cfg.ConfigPath, "c",
		getEnv("SJ_CONFIG", ""),
		"Path to JSON configuration file (env: SJ_CONFIG)")
	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("SJ_LOG_LEVEL", ""),
		"Log level: debug, info, warn, error (env: SJ_LOG_LEVEL)")
	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("SJ_LOG_FORMAT", ""),
		"Log format: json, text (env: SJ_LOG_FORMAT)")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")

	fs.Usage = func() {
		printDetailedHelp(stderr, fs)
	}

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	rest := fs.Args()
	if len(rest) > 0 {
		cfg.Command = rest[0]
		cfg.Args = rest[1:]
	}

	return cfg, fs, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.LogLevel != "" && !contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if cfg.LogFormat != "" && !contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.Command == "" {
		return fmt.Errorf("missing command")
	}
	if !contains(commandNames(), cfg.Command) {
		return fmt.Errorf("unknown command: %s", cfg.Command)
	}

	return nil
}

// checkFlags are the flags of the check command.
type checkFlags struct {
	Descriptors string
	Package     string
}

func parseCheckFlags(args []string, defaults checkFlags, stderr io.Writer) (checkFlags, error) {
	cfg := defaults

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.Descriptors, "descriptors", cfg.Descriptors,
		"FileDescriptorSet produced by protoc --descriptor_set_out (env: SJ_DESCRIPTOR_SET)")
	fs.StringVar(&cfg.Package, "package", cfg.Package,
		"Protobuf package of the bundle (env: SJ_CATALOG_PACKAGE)")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if cfg.Descriptors == "" {
		return cfg, fmt.Errorf("check: --descriptors is required")
	}
	return cfg, nil
}

// exportFlags are the flags of the export command.
type exportFlags struct {
	Format  string
	Out     string
	Package string
}

func parseExportFlags(args []string, defaults exportFlags, stderr io.Writer) (exportFlags, error) {
	cfg := defaults

	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.Format, "format", cfg.Format, "Manifest format: json, yaml")
	fs.StringVar(&cfg.Out, "out", cfg.Out, "Output file, stdout when empty")
	fs.StringVar(&cfg.Package, "package", cfg.Package,
		"Protobuf package of the bundle (env: SJ_CATALOG_PACKAGE)")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	cfg.Format = strings.ToLower(cfg.Format)
	if !contains([]string{"json", "yaml"}, cfg.Format) {
		return cfg, fmt.Errorf("export: invalid format: %s", cfg.Format)
	}
	return cfg, nil
}

// listFlags are the flags of the list command.
type listFlags struct {
	Package string
}

func parseListFlags(args []string, defaults listFlags, stderr io.Writer) (listFlags, error) {
	cfg := defaults

	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.Package, "package", cfg.Package,
		"Protobuf package of the bundle (env: SJ_CATALOG_PACKAGE)")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// convertFlags are the flags of the convert command.
type convertFlags struct {
	Descriptors string
	Package     string
	Schema      catalog.Name
	From        codec.Format
	To          codec.Format
	In          string
}

func parseConvertFlags(args []string, defaults convertFlags, stderr io.Writer) (convertFlags, error) {
	cfg := defaults

	var schema, from, to string
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.Descriptors, "descriptors", cfg.Descriptors,
		"FileDescriptorSet providing the message types (env: SJ_DESCRIPTOR_SET)")
	fs.StringVar(&cfg.Package, "package", cfg.Package,
		"Protobuf package of the bundle (env: SJ_CATALOG_PACKAGE)")
	fs.StringVar(&schema, "schema", "", "Catalog schema of the payload, e.g. Trial")
	fs.StringVar(&from, "from", "binary", "Input format: binary, json, text")
	fs.StringVar(&to, "to", "json", "Output format: binary, json, text")
	fs.StringVar(&cfg.In, "in", "", "Input file, stdin when empty")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if cfg.Descriptors == "" {
		return cfg, fmt.Errorf("convert: --descriptors is required")
	}

	name, err := catalog.Parse(schema)
	if err != nil {
		return cfg, fmt.Errorf("convert: --schema: %w", err)
	}
	cfg.Schema = name

	if cfg.From, err = codec.ParseFormat(from); err != nil {
		return cfg, fmt.Errorf("convert: --from: %w", err)
	}
	if cfg.To, err = codec.ParseFormat(to); err != nil {
		return cfg, fmt.Errorf("convert: --to: %w", err)
	}
	return cfg, nil
}

func printDetailedHelp(w io.Writer, fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(w, `%s - Science Journal schema catalog

Usage: %s [options] <command> [command options]

Commands:
  list                          List the catalog schemas in declaration order
  version                       Print the bundle version descriptor
  check --descriptors FILE      Verify a descriptor set provides every schema
  export [--format json|yaml]   Write the bundle manifest
  convert --descriptors FILE --schema NAME [--from F] [--to F]
                                Re-encode a payload between wire formats
  serve                         Run the catalog HTTP server

Options:
`, appName, appName)
	fs.SetOutput(w)
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(w, `
Examples:
  # Check generated bindings are complete
  protoc --include_imports --descriptor_set_out=sj.pb *.proto
  %s check --descriptors sj.pb

  # Export the manifest as YAML
  %s export --format yaml --out manifest.yaml

  # Serve with NATS publication
  export SJ_NATS_URL=nats://localhost:4222
  %s serve

Version: %s
Build: %s
`, appName, appName, appName, Version, BuildTime)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
