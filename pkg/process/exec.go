package process

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"storj.io/mantafront/pkg/cfgstruct"
)

const envPrefix = "STORJ"

// Bind registers one flag per leaf field of config on cmd's flag set,
// hiding any field tagged hidden:"true" from --help and from SaveConfig.
func Bind(cmd *cobra.Command, config interface{}, opts ...cfgstruct.BindOpt) {
	cfgstruct.Bind(cmd.Flags(), config, opts...)
}

// HideFlag hides name from --help output and from SaveConfig's emitted
// comments, for a field whose struct tag carries hidden:"true".
func HideFlag(cmd *cobra.Command, name string) {
	if f := cmd.Flags().Lookup(name); f != nil {
		f.Hidden = true
	}
}

// Exec runs cmd, first binding every registered flag to a STORJ_-prefixed
// environment variable via viper (spec.md §9's twelve-factor config
// story: flags override env, env overrides the struct tag default).
func Exec(cmd *cobra.Command) {
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	bindEnv(v, cmd.Flags())
	bindEnv(v, pflag.CommandLine)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func bindEnv(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		if !f.Changed && v.IsSet(f.Name) {
			_ = f.Value.Set(v.GetString(f.Name))
		}
	})
}

// SaveConfig writes every non-hidden flag's current value to path as a
// commented-out YAML document, one "# name: value" line per flag, sorted
// by name.
func SaveConfig(cmd *cobra.Command, path string) error {
	var names []string
	values := map[string]string{}
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		names = append(names, f.Name)
		values[f.Name] = f.Value.String()
	})
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "# %s: %s\n", name, values[name])
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}
