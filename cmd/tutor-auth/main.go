package main

import (
	"context"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/brizzai/tutor-auth/internal/config"
	"github.com/brizzai/tutor-auth/internal/logger"
)

func main() {
	Execute()
}

// cfg is loaded once flags are parsed
var cfg *config.Config

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "tutor-auth",
	Short: "Sign in to the tutor API with Google",
	Long: `tutor-auth signs a parent into the tutor API with Google.
The login command runs the native flow through a loopback redirect,
serve runs the browser flow for local development.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	defer func() {
		if r := recover(); r != nil {
			pterm.Error.Printf("\nCaught panic: %v\n", r)
			pterm.Error.Printf("%s\n", debug.Stack())
			os.Exit(2)
		}
	}()

	// Place version check in PreRun to ensure flags are parsed first
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		versionFlag, _ := cmd.Flags().GetBool("version")
		if versionFlag {
			pterm.Info.Println(config.GetVersionInfo())
			os.Exit(0)
		}

		loaded, err := config.Load(cmd.Flags())
		if err != nil {
			return err
		}
		if err := logger.InitLogger(&loaded.Logging); err != nil {
			return err
		}
		cfg = loaded
		return nil
	}
	rootCmd.PersistentPostRun = func(*cobra.Command, []string) {
		_ = logger.Sync()
	}

	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func init() {
	config.InitFlags(rootCmd.PersistentFlags())
	rootCmd.PersistentFlags().BoolP("version", "v", false, "Show version information")

	rootCmd.AddCommand(loginCmd, whoamiCmd, logoutCmd, serveCmd, configCmd, redirectURIsCmd)
}

// signalContext is cancelled on Ctrl-C or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
