package configfx

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Invocation is what the command line asks the process to do.
type Invocation struct {
	// Run every source once and exit
	Once bool

	// Explicit log export day, only honoured together with Once
	Day string
}

func InvocationProvider(v *viper.Viper, fs *pflag.FlagSet) Invocation {
	return Invocation{
		Once: v.GetBool(FlagOnce),
		Day:  fs.Arg(0),
	}
}
