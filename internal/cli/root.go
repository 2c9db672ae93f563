package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/harun/toolshed/internal/config"
	"github.com/harun/toolshed/internal/logger"
)

const version = "0.1.0"

// annotationDaemon marks long-running commands that also log to a file
const annotationDaemon = "daemon"

var (
	cfgFile  string
	logLevel string
	envFile  string

	// set by the root PersistentPreRunE
	cfg    *config.Config
	loader *config.Loader
	appLog *logger.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "toolshed",
	Short: "Toolshed - generate, browse and run small JavaScript tools",
	Long: `Toolshed turns natural-language requests into small JavaScript tools,
keeps them in a searchable catalog and runs them from the browser or the
terminal.`,
	Version:            version,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.toolshed/toolshed.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error), overrides the config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// setup loads the environment, the configuration and the logger
func setup(cmd *cobra.Command, args []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	loader = config.NewLoader(cfgFile)
	loaded, err := loader.Load()
	if err != nil {
		return err
	}
	cfg = loaded

	if logLevel != "" {
		if err := config.NewValidator().ValidateLogLevel(logLevel); err != nil {
			return err
		}
		cfg.Logging.Level = logLevel
	}

	logCfg := logger.Config{
		Level:     cfg.Logging.Level,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		Output:    cmd.ErrOrStderr(),
	}
	if cmd.Annotations[annotationDaemon] == "true" {
		logCfg.File = cfg.Logging.File
		logCfg.MaxSize = cfg.Logging.MaxSize
		logCfg.MaxAge = cfg.Logging.MaxAge
		logCfg.Compress = cfg.Logging.Compress
	}

	appLog, err = logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	if appLog == nil {
		return nil
	}
	err := appLog.Close()
	appLog = nil
	return err
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}
