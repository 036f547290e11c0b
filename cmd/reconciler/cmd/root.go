package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"bank-ledger-reconciler/cmd/reconciler/config"
	"bank-ledger-reconciler/pkg/errors"
	"bank-ledger-reconciler/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootOptions is the state shared by every command of one invocation
type rootOptions struct {
	cfgFile string
	verbose bool

	v        *viper.Viper
	settings *config.Settings
}

// NewRootCommand builds the command tree with its own viper instance
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "reconciler",
		Short: "Bank statement to ledger reconciliation tool",
		Long: `Reconciler matches the records of a bank statement against the records
of an accounting ledger. Each record is matched at most once; pairs are
scored on amount, date and description and committed strongest first.

Record files are JSON arrays or YAML sequences of objects with id, amount,
date and description fields.

Examples:
  reconciler reconcile --bank bank.json --ledger ledger.json
  reconciler reconcile --bank bank.yaml --ledger ledger.yaml --preset strict -f json
  reconciler config --preset relaxed
  reconciler generate --output-dir data --matched 1000`,
		Version:       getVersionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.initConfig()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.cfgFile, "config", "", "config file (yaml or json)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")
	pf.String("preset", config.PresetDefault, "matching preset: "+strings.Join(config.Presets(), ", "))
	pf.String("log-level", string(logger.InfoLevel), "log level: debug, info, warn, error")
	pf.String("log-format", string(logger.TextFormat), "log format: text, json")

	opts.v.BindPFlag("preset", pf.Lookup("preset"))
	opts.v.BindPFlag("log.level", pf.Lookup("log-level"))
	opts.v.BindPFlag("log.format", pf.Lookup("log-format"))

	rootCmd.AddCommand(newReconcileCommand(opts))
	rootCmd.AddCommand(newConfigCommand(opts))
	rootCmd.AddCommand(newGenerateCommand())

	return rootCmd
}

// Execute runs the command line and returns the process exit code
func Execute() int {
	return run(os.Args[1:], os.Stdout, os.Stderr)
}

func run(args []string, stdout, stderr io.Writer) int {
	rootCmd := NewRootCommand()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.Execute()
	verbose, _ := rootCmd.PersistentFlags().GetBool("verbose")
	return NewCLIErrorHandler(stderr, verbose).HandleError(err)
}

// initConfig reads the config file and environment, then sets up the
// global logger from the resolved settings
func (o *rootOptions) initConfig() error {
	v := o.v

	if o.cfgFile != "" {
		v.SetConfigFile(o.cfgFile)
		if err := v.ReadInConfig(); err != nil {
			if os.IsNotExist(err) {
				return errors.FileError(errors.CodeFileNotFound, o.cfgFile, err)
			}
			return errors.ConfigurationError(errors.CodeInvalidConfig, "config", o.cfgFile, err)
		}
	}

	v.SetEnvPrefix("RECONCILER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	settings, err := config.Load(v)
	if err != nil {
		return err
	}
	if o.verbose {
		settings.Log.Level = logger.DebugLevel
	}

	log, err := logger.NewLogger(&settings.Log)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "log", settings.Log.Output, err)
	}
	logger.SetGlobalLogger(log)

	if o.cfgFile != "" {
		log.WithField("config_file", v.ConfigFileUsed()).Debug("Using config file")
	}

	o.settings = settings
	return nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
