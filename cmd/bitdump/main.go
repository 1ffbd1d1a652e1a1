// Command bitdump decodes the industrial protocol traffic in a pcap file and prints every frame
// as an indented field tree or as JSON.
//
//	bitdump -protocol modbus-tcp capture.pcap.gz
//	bitdump -config bitdump.toml -format json capture.pcap
//	bitdump -protocol schema -schema reading.yaml -port 9000 capture.pcap
package main

import (
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	osfs "github.com/gopherfs/fs/io/os"
	"github.com/gostdlib/base/context"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bearlytools/bitcodec/capture"
	"github.com/bearlytools/bitcodec/config"
	"github.com/bearlytools/bitcodec/internal/logging"
)

var (
	configFile  = flag.String("config", "", "TOML config file; flags override its values")
	protocol    = flag.String("protocol", "", "modbus-tcp, modbus-rtu, synchrophasor or schema")
	format      = flag.String("format", "", "text or json")
	port        = flag.Int("port", 0, "only decode packets to or from this port, -1 for any")
	schemaFile  = flag.String("schema", "", "schema file (YAML or text) for -protocol schema")
	limit       = flag.Int("limit", 0, "stop after this many frames")
	enumNumbers = flag.Bool("enum-numbers", false, "print enums and flags as numbers")
	indent      = flag.String("indent", "", "indent JSON output with this string")
	logLevel    = flag.String("log-level", "", "debug, info, warn or error")
)

func main() {
	ctx := context.Background()

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: bitdump [flags] <capture.pcap>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	logging.ConfigureRuntime()

	fsys, err := osfs.New()
	if err != nil {
		panic(err)
	}

	cfg := config.Default()
	if *configFile != "" {
		p, err := filepath.Abs(*configFile)
		if err != nil {
			exitf("config %s: %s", *configFile, err)
		}
		if cfg, err = config.Load(fsys, p); err != nil {
			exitf("%s", err)
		}
	}
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if cfg, err = applyFlags(cfg, set); err != nil {
		exitf("%s", err)
	}

	if lvl, ok := logging.ParseLevel(cfg.LogLevel); ok {
		zerolog.SetGlobalLevel(lvl)
	}

	capPath, err := filepath.Abs(flag.Arg(0))
	if err != nil {
		exitf("capture %s: %s", flag.Arg(0), err)
	}
	if err := run(ctx, fsys, cfg, capPath, os.Stdout, log.Logger); err != nil {
		exitf("%s", err)
	}
}

// applyFlags sets the values of the flags named in set on cfg.
func applyFlags(cfg config.Dump, set map[string]bool) (config.Dump, error) {
	if set["protocol"] {
		cfg.Protocol = *protocol
	}
	if set["format"] {
		cfg.Format = *format
	}
	if set["port"] {
		cfg.Port = *port
	}
	if set["schema"] {
		p, err := filepath.Abs(*schemaFile)
		if err != nil {
			return cfg, err
		}
		cfg.Schema = p
	}
	if set["limit"] {
		cfg.Limit = *limit
	}
	if set["enum-numbers"] {
		cfg.EnumNumbers = *enumNumbers
	}
	if set["indent"] {
		cfg.Indent = *indent
	}
	if set["log-level"] {
		cfg.LogLevel = *logLevel
	}
	return cfg, cfg.Validate()
}

// run decodes the capture at capPath in fsys and writes the frames to out.
func run(ctx context.Context, fsys fs.FS, cfg config.Dump, capPath string, out io.Writer, logger zerolog.Logger) error {
	d, err := newDumper(ctx, fsys, cfg, out, logger)
	if err != nil {
		return err
	}

	r, err := capture.Open(ctx, fsys, capPath, capture.WithPort(cfg.MatchPort()), capture.WithLogger(logger))
	if err != nil {
		return err
	}
	logger.Debug().Str("capture", capPath).Uint32("link", r.LinkType()).Bool("nanosecond", r.Nanosecond()).Msg("reading capture")

	return d.run(ctx, r)
}

func exitf(s string, i ...any) {
	fmt.Fprintf(os.Stderr, s+"\n", i...)
	os.Exit(1)
}
