package cmd

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newLogoutCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, release, err := g.newClient(cmd)
			if err != nil {
				return err
			}
			defer release()

			if err := client.Logout(cmd.Context()); err != nil {
				return describe(client.Config(), err)
			}
			pterm.Success.WithWriter(cmd.OutOrStdout()).Println("Logged out")
			return nil
		},
	}
}

func newStatusCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, release, err := g.newClient(cmd)
			if err != nil {
				return err
			}
			defer release()
			ctx := cmd.Context()

			rec, src, ok := client.Store().ReadWithSource(ctx)
			if !ok {
				return errNotSignedIn
			}

			out := cmd.OutOrStdout()
			info := pterm.Info.WithWriter(out)
			pterm.DefaultSection.WithWriter(out).Println("Session")
			info.Printfln("User: %s (%s)", displayName(rec.Principal), rec.Principal.ID)
			if rec.Principal.Email != "" {
				info.Printfln("Email: %s", rec.Principal.Email)
			}
			info.Printfln("Role: %s", rec.Principal.Role)
			info.Printfln("Home: %s", client.HomePath(ctx))
			info.Printfln("Signed in: %s", rec.CreatedAt.Format(time.RFC1123))
			info.Printfln("Loaded from: %s", src)
			if rec.Degraded() {
				pterm.Warning.WithWriter(out).Println("Backend did not confirm this sign-in; protected calls will fail")
			} else {
				info.Println("Access token: present")
			}
			return nil
		},
	}
}

func newRefreshCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Trade the refresh token for a new access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, release, err := g.newClient(cmd)
			if err != nil {
				return err
			}
			defer release()

			rec, err := client.RefreshAccessToken(cmd.Context())
			if err != nil {
				return describe(client.Config(), err)
			}
			pterm.Success.WithWriter(cmd.OutOrStdout()).Printfln("Access token refreshed for %s", displayName(rec.Principal))
			return nil
		},
	}
}

func newExportCmd(g *globalOptions) *cobra.Command {
	var shell string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the access token as a shell variable",
		Long: `Prints the access token as EVAUTH_ACCESS_TOKEN for the given shell.

  eval $(evauthctl export)
  evauthctl export --shell fish | source
  evauthctl export --shell powershell | Invoke-Expression`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, release, err := g.newClient(cmd)
			if err != nil {
				return err
			}
			defer release()

			token, ok := client.Store().AccessToken(cmd.Context())
			if !ok {
				return errNotSignedIn
			}
			out := cmd.OutOrStdout()
			switch shell {
			case "", "posix", "bash", "zsh", "sh":
				fmt.Fprintf(out, "export EVAUTH_ACCESS_TOKEN=%q\n", token)
			case "fish":
				fmt.Fprintf(out, "set -gx EVAUTH_ACCESS_TOKEN %q\n", token)
			case "powershell", "pwsh":
				fmt.Fprintf(out, "$env:EVAUTH_ACCESS_TOKEN = '%s'\n", token)
			default:
				return fmt.Errorf("unsupported shell format: %s", shell)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&shell, "shell", "", "Shell format: posix, fish, powershell")
	return cmd
}
