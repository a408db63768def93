package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/MeKo-Tech/shipscan/internal/config"
	"github.com/MeKo-Tech/shipscan/internal/pipeline"
	"github.com/MeKo-Tech/shipscan/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Exit codes of the shipscan binary.
const (
	exitError         = 1
	exitNoAcquisition = 3
)

var (
	// Global configuration loader.
	configLoader *config.Loader
	// Global configuration.
	globalConfig *config.Config
	// Configuration file path.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "shipscan",
	Short: "Ship candidate detection in Sentinel-1 SAR imagery",
	Long: `shipscan finds ship candidates in C-band SAR backscatter over water.

For one acquisition it builds a water mask from a water-occurrence raster,
thresholds the backscatter, cleans the result with morphological close and
open, removes speckle, vectorizes the remaining regions and keeps those whose
length reaches a minimum.

Examples:
  shipscan detect --date 2024-03-15 --manifest scenes.yaml --occurrence occurrence.asc
  shipscan sweep --intensity s1_vv.asc --occurrence occurrence.asc --thresholds -5,0,5
  shipscan serve --port 8080
  shipscan config init`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, _ := cmd.PersistentFlags().GetBool("version")
		if v {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "shipscan version "+version.String())
			return nil
		}
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if errors.Is(err, pipeline.ErrNoAcquisitionAvailable) {
		return exitNoAcquisition
	}
	return exitError
}

// GetRootCommand returns the root command for testing purposes.
// This allows tests to execute commands without calling os.Exit().
func GetRootCommand() *cobra.Command {
	return rootCmd
}

// flagBinding ties a command flag to a configuration key.
type flagBinding struct {
	key  string
	flag string
}

// commandBindings holds each subcommand's bindings. They are applied only
// for the command being executed, so commands sharing a key do not shadow
// each other's flags.
var commandBindings = map[*cobra.Command][]flagBinding{}

func registerBindings(cmd *cobra.Command, bindings ...flagBinding) {
	for _, b := range bindings {
		if cmd.Flags().Lookup(b.flag) == nil {
			panic(fmt.Sprintf("no flag %q on command %s", b.flag, cmd.Name()))
		}
	}
	commandBindings[cmd] = append(commandBindings[cmd], bindings...)
}

func bindFlags(cmd *cobra.Command) error {
	for _, b := range commandBindings[cmd] {
		if err := viper.BindPFlag(b.key, cmd.Flags().Lookup(b.flag)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", b.flag, err)
		}
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is search in ., $HOME, $HOME/.config/shipscan, /etc/shipscan)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("version", false, "print version information and exit")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := bindFlags(cmd); err != nil {
			return err
		}
		if err := initConfig(); err != nil {
			return err
		}

		var logLevel slog.Level
		if globalConfig.Verbose {
			logLevel = slog.LevelDebug
		} else {
			switch globalConfig.LogLevel {
			case "debug":
				logLevel = slog.LevelDebug
			case "warn":
				logLevel = slog.LevelWarn
			case "error":
				logLevel = slog.LevelError
			default:
				logLevel = slog.LevelInfo
			}
		}

		// Results go to stdout; logs stay on stderr.
		logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
			Level: logLevel,
		}))
		slog.SetDefault(logger)
		return nil
	}
}

// initConfig reads the config file, environment and bound flags.
func initConfig() error {
	configLoader = config.NewLoader()

	var err error
	if cfgFile != "" {
		globalConfig, err = configLoader.LoadWithFile(cfgFile)
	} else {
		globalConfig, err = configLoader.Load()
	}
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	return nil
}

// GetConfig returns the global configuration, loading it on first use.
func GetConfig() (*config.Config, error) {
	if globalConfig == nil {
		if err := initConfig(); err != nil {
			return nil, err
		}
	}
	return globalConfig, nil
}

// GetConfigLoader returns the global configuration loader.
func GetConfigLoader() *config.Loader {
	if configLoader == nil {
		configLoader = config.NewLoader()
	}
	return configLoader
}
