// Command leafdb inspects and edits a leafdb file.
//
//	leafdb [flags] <file> <command> [args]
//
// Commands: get KEY, put KEY VALUE, delete KEY, scan [START [END]], stats,
// check, shell.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/alexhholmes/leafdb"
	"github.com/alexhholmes/leafdb/logger"
)

var errUsage = errors.New("usage")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("leafdb", flag.ContinueOnError)
	fs.SetOutput(stderr)
	logLevel := fs.String("log-level", "warn", "log level (debug, info, warn, error)")
	logFormat := fs.String("log-format", "console", "log format (console or json)")
	pageSize := fs.Int("page-size", 4096, "page size of new files")
	leafCapacity := fs.Int("leaf-capacity", 16, "entries per leaf page of new files")
	compress := fs.Bool("compress", false, "snappy compress large values of new files")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: leafdb [flags] <file> <command> [args]")
		fmt.Fprintln(stderr, "commands: get KEY | put KEY VALUE | delete KEY | scan [START [END]] | stats | check | shell")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 2 {
		fs.Usage()
		return 2
	}

	log, err := newLogger(*logLevel, *logFormat, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "leafdb: %v\n", err)
		return 2
	}
	defer func() {
		_ = log.Sync()
	}()

	db, err := leafdb.Open(fs.Arg(0),
		leafdb.WithLogger(logger.NewZap(log)),
		leafdb.WithPageSize(*pageSize),
		leafdb.WithLeafCapacity(*leafCapacity),
		leafdb.WithCompression(*compress),
	)
	if err != nil {
		fmt.Fprintf(stderr, "leafdb: %v\n", err)
		return 1
	}

	cmd := fs.Args()[1:]
	if cmd[0] == "shell" {
		err = shell(db, stdout)
	} else {
		err = execute(db, cmd, stdout)
	}
	if cerr := db.Close(); err == nil {
		err = cerr
	}

	switch {
	case errors.Is(err, errUsage):
		fmt.Fprintf(stderr, "leafdb: %v\n", err)
		return 2
	case err != nil:
		fmt.Fprintf(stderr, "leafdb: %v\n", err)
		return 1
	}
	return 0
}

// newLogger builds a zap logger writing to w.
func newLogger(level, format string, w io.Writer) (*zap.Logger, error) {
	lvl := zap.NewAtomicLevel()
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var enc zapcore.Encoder
	switch strings.ToLower(format) {
	case "console":
		enc = zapcore.NewConsoleEncoder(cfg)
	case "json":
		enc = zapcore.NewJSONEncoder(cfg)
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), lvl)), nil
}

// execute runs a single command.
func execute(db *leafdb.DB, args []string, out io.Writer) error {
	if len(args) == 0 {
		return nil
	}

	switch strings.ToLower(args[0]) {
	case "get":
		if len(args) != 2 {
			return fmt.Errorf("%w: get KEY", errUsage)
		}
		value, ok, err := db.Get([]byte(args[1]))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "(not found)")
			return nil
		}
		fmt.Fprintf(out, "%s\n", value)

	case "put":
		if len(args) < 3 {
			return fmt.Errorf("%w: put KEY VALUE", errUsage)
		}
		if err := db.Put([]byte(args[1]), []byte(strings.Join(args[2:], " "))); err != nil {
			return err
		}
		fmt.Fprintln(out, "OK")

	case "delete", "del":
		if len(args) != 2 {
			return fmt.Errorf("%w: delete KEY", errUsage)
		}
		existed, err := db.Delete([]byte(args[1]))
		if err != nil {
			return err
		}
		if existed {
			fmt.Fprintln(out, "deleted")
		} else {
			fmt.Fprintln(out, "(not found)")
		}

	case "scan":
		if len(args) > 3 {
			return fmt.Errorf("%w: scan [START [END]]", errUsage)
		}
		var r leafdb.Range
		if len(args) > 1 {
			r.Start = []byte(args[1])
		}
		if len(args) > 2 {
			r.End = []byte(args[2])
		}
		it := db.Scan(r)
		defer it.Close()
		n := 0
		for it.Next() {
			fmt.Fprintf(out, "%s = %s\n", it.Key(), it.Value())
			n++
		}
		if err := it.Err(); err != nil {
			return err
		}
		fmt.Fprintf(out, "(%d entries)\n", n)

	case "stats":
		s := db.Stats()
		fmt.Fprintf(out, "id:           %s\n", db.ID())
		fmt.Fprintf(out, "entries:      %d\n", s.Entries)
		fmt.Fprintf(out, "depth:        %d\n", s.Depth)
		fmt.Fprintf(out, "page size:    %d\n", s.PageSize)
		fmt.Fprintf(out, "pages:        %d (%d free)\n", s.PageCount, s.FreePages)
		fmt.Fprintf(out, "generation:   %d\n", s.Generation)
		fmt.Fprintf(out, "reads/writes: %d/%d\n", s.Reads, s.Writes)
		fmt.Fprintf(out, "cache:        %d hits, %d misses\n", s.CacheHits, s.CacheMisses)

	case "check":
		report, err := db.Check()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "ok: %d entries, depth %d, %d leaves, %d branches, %d overflow pages\n",
			report.Entries, report.Depth, report.Leaves, report.Branches, report.OverflowPages)
		fmt.Fprintf(out, "pages: %d total, %d reachable, %d free, %d leaked\n",
			report.PageCount, report.ReachablePages, report.FreePages, report.Leaked)

	case "flush":
		if err := db.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(out, "OK")

	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
	return nil
}

// shell runs an interactive prompt until EOF or "exit".
func shell(db *leafdb.DB, out io.Writer) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "leafdb> ",
		Stdout:          out,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("get"),
			readline.PcItem("put"),
			readline.PcItem("delete"),
			readline.PcItem("scan"),
			readline.PcItem("stats"),
			readline.PcItem("check"),
			readline.PcItem("flush"),
			readline.PcItem("exit"),
		),
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		args := strings.Fields(line)
		if len(args) == 1 && (args[0] == "exit" || args[0] == "quit") {
			return nil
		}
		if err := execute(db, args, out); err != nil {
			// Corruption and I/O failures end the session, typos do not
			if errors.Is(err, leafdb.ErrCorruption) || errors.Is(err, leafdb.ErrIO) {
				return err
			}
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}
