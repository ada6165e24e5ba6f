package main

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/brizzai/tutor-auth/internal/app"
	"github.com/brizzai/tutor-auth/internal/auth/broker"
	"github.com/brizzai/tutor-auth/internal/auth/constants"
	"github.com/brizzai/tutor-auth/internal/auth/flow"
	"github.com/brizzai/tutor-auth/internal/auth/models"
	"github.com/brizzai/tutor-auth/internal/logger"
	"go.uber.org/zap"
)

var noBrowser bool

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with Google through the system browser",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		open := openBrowser
		if noBrowser {
			open = printURL
		}
		b := broker.NewLoopbackBroker(cfg.OAuth.LoopbackPort, open)

		return withController(ctx, flow.Capabilities{Resolver: b, Broker: b}, func(ctrl *flow.Controller) error {
			spinner, _ := pterm.DefaultSpinner.Start("Waiting for Google sign-in...")
			result, err := ctrl.Login(ctx)
			if err != nil {
				spinner.Fail("Sign-in did not complete")
				if errors.Is(err, flow.ErrLoginCancelled) {
					return nil
				}
				return err
			}
			spinner.Success("Signed in")
			printProfile(result.User)
			if result.IsNewUser {
				pterm.Info.Println("Welcome! Your account was just created.")
			}
			return nil
		})
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in account, checked against the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withController(cmd.Context(), nativeCapabilities(), func(ctrl *flow.Controller) error {
			st := ctrl.Bootstrap(cmd.Context())
			if !st.IsAuthenticated {
				pterm.Warning.Println("Not signed in")
				return nil
			}
			printProfile(st.User)
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withController(cmd.Context(), nativeCapabilities(), func(ctrl *flow.Controller) error {
			if err := ctrl.Logout(cmd.Context()); err != nil {
				return err
			}
			pterm.Success.Println("Signed out")
			return nil
		})
	},
}

func init() {
	loginCmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Print the sign-in URL instead of opening a browser")
}

// nativeCapabilities is enough to build a controller for commands that never log in.
func nativeCapabilities() flow.Capabilities {
	b := broker.NewLoopbackBroker(cfg.OAuth.LoopbackPort, printURL)
	return flow.Capabilities{Resolver: b, Broker: b}
}

// withController starts the native graph, runs fn and stops the graph again.
func withController(ctx context.Context, caps flow.Capabilities, fn func(*flow.Controller) error) error {
	var ctrl *flow.Controller
	fxApp := fx.New(
		app.Native(cfg, caps, ptermNotifier{}),
		fx.Populate(&ctrl),
	)
	if err := fxApp.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := fxApp.Stop(context.Background()); err != nil {
			logger.Warn("Failed to stop application", zap.Error(err))
		}
	}()
	return fn(ctrl)
}

// ptermNotifier shows controller alerts on the terminal.
type ptermNotifier struct{}

func (ptermNotifier) Alert(title, message string) {
	pterm.Error.WithPrefix(pterm.Prefix{Text: title, Style: pterm.Error.Prefix.Style}).Println(message)
}

func printProfile(u *models.UserProfile) {
	if u == nil {
		return
	}
	_ = pterm.DefaultTable.WithData(pterm.TableData{
		{"Name", u.DisplayName()},
		{"Email", u.Email},
		{"ID", u.ID},
	}).Render()
}

func printURL(url string) error {
	pterm.Info.Printfln("Open this URL to sign in:\n%s", url)
	return nil
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		logger.Debug("Failed to launch browser", zap.Error(err))
		return printURL(url)
	}
	go func() { _ = cmd.Wait() }()
	pterm.Info.Println("Opened your browser to sign in")
	return nil
}

var redirectURIsCmd = &cobra.Command{
	Use:   "redirect-uris",
	Short: "List the redirect URIs to register with Google",
	RunE: func(cmd *cobra.Command, args []string) error {
		scheme, err := broker.SchemeResolver{Scheme: cfg.OAuth.NativeScheme}.RedirectURI(cmd.Context())
		if err != nil {
			return err
		}
		return pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
			{"Client", "Redirect URI"},
			{"web", cfg.Server.ServerOrigin() + cfg.OAuth.CallbackPath},
			{"native (loopback)", fmt.Sprintf("http://127.0.0.1:%d%s", cfg.OAuth.LoopbackPort, constants.NativeRedirectPath)},
			{"native (app scheme)", scheme},
		}).Render()
	},
}
