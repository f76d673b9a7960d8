package process

import (
	"context"
	"fmt"
	"io"
	"os"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"chopper/config"
	"chopper/state"
)

// DumpConfigFlags returns flags of dumpconfig subcommand.
func DumpConfigFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{Name: "default", Usage: "output default embedded configuration"},
	}
}

// DumpConfig is the action of dumpconfig subcommand. Configuration goes to
// the file named by the first argument or to stdout.
func DumpConfig(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)
	log := env.Log.Named("dumpconfig")

	if cmd.Args().Len() > 1 {
		log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}

	cfg := env.Cfg
	if cmd.Bool("default") {
		cfg = nil
	}

	fname := cmd.Args().Get(0)
	if len(fname) == 0 {
		return writeConfig(os.Stdout, "STDOUT", cfg, log)
	}

	out, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("unable to create destination file '%s': %w", fname, err)
	}
	if err := writeConfig(out, fname, cfg, log); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func writeConfig(w io.Writer, name string, cfg *config.Config, log *zap.Logger) error {
	data, kind, err := config.Snapshot(cfg)
	if err != nil {
		return fmt.Errorf("unable to get configuration: %w", err)
	}

	log.Info("Writing configuration", zap.String("state", kind), zap.String("file", name))

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("unable to write configuration: %w", err)
	}
	return nil
}
