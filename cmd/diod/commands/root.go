// Package commands implements the diod CLI surface (spec.md §6) as a
// cobra command tree, grounded on the teacher's cmd/dfs/commands package:
// a package-level viper instance bound to pflag flags, a shared
// Version/Commit/Date set by main, and one subcommand per concern.
package commands

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version/Commit/Date are set by main from ldflags-injected build info.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var v = viper.New()

var configFile string

var rootCmd = &cobra.Command{
	Use:   "diod",
	Short: "diod is a user-space 9P2000.L file server",
	Long: `diod exports host directory trees over 9P2000.L to Linux clients
using the kernel's built-in 9p client (mount -t 9p), one worker-pool
thread per in-flight request with per-request credential switching.`,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config-file", "", "path to a YAML configuration file")
	flags.StringSlice("listen", nil, "listen endpoint(s), e.g. tcp:0.0.0.0:564 or unix:/run/diod.sock")
	flags.Int("rfdno", 0, "read from this fd instead of listening (paired with --wfdno)")
	flags.Int("wfdno", 0, "write to this fd instead of listening (paired with --rfdno)")
	flags.Int("nwthreads", 0, "worker pool size (0 uses the compiled-in default)")
	flags.String("msize", "", "maximum negotiated 9P message size, e.g. 64Ki")
	flags.StringSlice("export", nil, "host directory to export; may be repeated")
	flags.Bool("export-all", false, "permit attaching to any host path, not just --export entries")
	flags.String("export-opts", "", "default per-export options: sharefd,sharepath,privport,ro")
	flags.String("export-file", "", "YAML file of per-export entries, merged with --export/--export-opts")
	flags.Bool("no-auth", false, "accept Tattach uname/n_uname without an afid handshake")
	flags.Bool("no-userdb", false, "do not consult the host passwd database; unames must be numeric")
	flags.Int64("runas-uid", -1, "uid value, validated at startup but not applied by the server (-1: unset)")
	flags.Bool("allsquash", false, "map every attaching user to --squashuser")
	flags.String("squashuser", "", "identity substituted under --allsquash (default nobody)")
	flags.String("log-level", "", "debug, info, warn, or error")
	flags.String("log-format", "", "text or json")

	_ = v.BindPFlags(flags)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
