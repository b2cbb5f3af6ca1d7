package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pilotdata/pilotcli/internal/auth"
	"github.com/pilotdata/pilotcli/internal/clierr"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Log in, log out and show the current user",
	}

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())

	return cmd
}

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with the device code flow or an API key",
		Long: `Authenticate with the platform.

Without flags, login prints a code to approve in the browser. With --api-key
the key is exchanged for tokens and stored, so expired sessions renew without
prompting. Pass --api-key - to read the key from stdin.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}

	cmd.Flags().String("api-key", "", "API key to exchange for tokens, or - to read it from stdin")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}

	cmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")

	return cmd
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user and session state",
		Args:  cobra.NoArgs,
		RunE:  runWhoami,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	key, _ := cmd.Flags().GetString("api-key")

	if key == "-" {
		var err error
		if key, err = readAPIKey(cc, cmd.InOrStdin()); err != nil {
			return err
		}
	}

	if key != "" {
		cc.Logger.Info("login started", slog.String("method", "api-key"))

		if err := cc.Auth.LoginAPIKey(cmd.Context(), key); err != nil {
			return err
		}
	} else {
		cc.Logger.Info("login started", slog.String("method", "device-code"))

		err := cc.Auth.LoginDevice(cmd.Context(), func(dc auth.DeviceCode) {
			// Always shown, --quiet or not.
			fmt.Fprintf(os.Stderr, "To sign in, visit: %s\n", dc.VerificationURI)
			fmt.Fprintf(os.Stderr, "Enter code: %s\n", dc.UserCode)
		})
		if err != nil {
			return err
		}
	}

	cc.Statusf("Logged in as %s.\n", cc.Auth.Username())

	return nil
}

// readAPIKey reads the key without echo on a terminal, otherwise as the
// first line of in.
func readAPIKey(cc *CLIContext, in io.Reader) (string, error) {
	var (
		key string
		err error
	)

	if cc.Terminal != nil && cc.Terminal.Interactive() {
		key, err = cc.Terminal.ReadSecret("API key: ")
	} else {
		key, err = bufio.NewReader(in).ReadString('\n')
		if err == io.EOF && key != "" {
			err = nil
		}
	}

	if err != nil {
		return "", fmt.Errorf("reading API key: %w", err)
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return "", clierr.New(clierr.InvalidCredentials, "empty API key")
	}

	return key, nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	yes, _ := cmd.Flags().GetBool("yes")

	if err := cc.login(); err != nil {
		return err
	}

	user := cc.Auth.Username()

	if !cc.handler(yes).Confirm(fmt.Sprintf("Log out %s and delete the stored credentials?", user)) {
		return errors.New("logout canceled")
	}

	if err := cc.Auth.Logout(); err != nil {
		return err
	}

	cc.Logger.Info("logout successful", slog.String("user", user))
	cc.Statusf("Logged out %s.\n", user)

	return nil
}

// whoamiOutput is the JSON schema for `user whoami --json`.
type whoamiOutput struct {
	Username string `json:"username"`
	Session  string `json:"session"`
	APIKey   bool   `json:"api_key"`
	Identity string `json:"identity_file"`
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if err := cc.login(); err != nil {
		return err
	}

	id := cc.Auth.Identity()
	out := whoamiOutput{
		Username: id.Username,
		Session:  cc.Auth.State().String(),
		APIKey:   id.APIKey != "",
		Identity: cc.Store.Path(),
	}

	if cc.Flags.JSON {
		return printJSON(cc.stdout, out)
	}

	fmt.Fprintf(cc.stdout, "User:     %s\n", out.Username)
	fmt.Fprintf(cc.stdout, "Session:  %s\n", out.Session)
	fmt.Fprintf(cc.stdout, "API key:  %t\n", out.APIKey)
	fmt.Fprintf(cc.stdout, "Stored:   %s\n", out.Identity)

	return nil
}
