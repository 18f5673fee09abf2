package configfx

import (
	"os"

	"github.com/spf13/pflag"
)

const (
	FlagConfig = "config"
	FlagOnce   = "once"
)

func PFlags() (*pflag.FlagSet, error) {
	fs := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)

	// Config file flag
	fs.StringP(FlagConfig, "c", "", "Config file")

	// Run every source once and exit instead of following schedules
	fs.Bool(FlagOnce, false, "Run every source once and exit")

	fs.Usage = func() {
		_, _ = os.Stderr.WriteString("Usage: archiver [--config file] [--once] [yyyy-MM-dd]\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, err
	}

	return fs, nil
}
