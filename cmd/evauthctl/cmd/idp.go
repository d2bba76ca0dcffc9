package cmd

import (
	"fmt"

	"github.com/evdealer/authclient/idp"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newIdPCmd(g *globalOptions) *cobra.Command {
	parent := &cobra.Command{
		Use:   "idp",
		Short: "Identity provider helpers",
	}
	parent.AddCommand(&cobra.Command{
		Use:   "url",
		Short: "Print the provider sign-in URL",
		Long: `Prints the authorization URL for the configured identity provider.
Open it, sign in, then pass the returned code to 'evauthctl login --code'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			rp, err := relyingParty(cmd, cfg)
			if err != nil {
				return err
			}
			state, err := idp.NewState()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			pterm.Info.WithWriter(out).Printfln("State: %s", state)
			fmt.Fprintln(out, rp.AuthCodeURL(state))
			return nil
		},
	})
	return parent
}
