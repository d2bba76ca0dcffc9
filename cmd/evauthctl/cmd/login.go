package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	authclient "github.com/evdealer/authclient"
	"github.com/evdealer/authclient/idp"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

type loginOptions struct {
	email    string
	password string
	idToken  string
	code     string
}

func newLoginCmd(g *globalOptions) *cobra.Command {
	opts := &loginOptions{}
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the dealer backend",
		Long: `Signs in and stores the session.

Three methods are supported:
1. Password: --email with --password (or EVAUTH_PASSWORD).
2. Identity token: --id-token with a token issued by the identity provider.
3. Authorization code: --code from 'evauthctl idp url', exchanged with the
   configured identity provider first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogin(cmd, g, opts)
		},
	}
	cmd.Flags().StringVar(&opts.email, "email", "", "Account email")
	cmd.Flags().StringVar(&opts.password, "password", "", "Account password")
	cmd.Flags().StringVar(&opts.idToken, "id-token", "", "Identity provider ID token")
	cmd.Flags().StringVar(&opts.code, "code", "", "Identity provider authorization code")
	cmd.MarkFlagsMutuallyExclusive("email", "id-token", "code")
	return cmd
}

func runLogin(cmd *cobra.Command, g *globalOptions, opts *loginOptions) error {
	client, release, err := g.newClient(cmd)
	if err != nil {
		return err
	}
	defer release()
	ctx := cmd.Context()
	cfg := client.Config()

	var assertion authclient.Assertion
	switch {
	case opts.code != "":
		token, err := exchangeCode(cmd, cfg, opts.code)
		if err != nil {
			return err
		}
		assertion = authclient.IdentityAssertion{IDToken: token}
	case opts.idToken != "":
		assertion = authclient.IdentityAssertion{IDToken: opts.idToken}
	case opts.email != "":
		password := opts.password
		if password == "" {
			password = os.Getenv("EVAUTH_PASSWORD")
		}
		assertion = authclient.PasswordAssertion{Email: strings.TrimSpace(opts.email), Password: password}
	default:
		return errors.New("one of --email, --id-token or --code is required")
	}

	res, err := client.Exchange(ctx, assertion)
	if err != nil {
		return describe(cfg, err)
	}

	out := cmd.OutOrStdout()
	p := res.Record.Principal
	if res.State == authclient.ExchangeDegraded {
		msg, _ := cfg.Messages.ParseError(res.Warning)
		pterm.Warning.WithWriter(out).Printfln("Signed in without backend confirmation: %s", msg)
	} else {
		pterm.Success.WithWriter(out).Printfln("Signed in as %s (%s)", displayName(p), p.Role)
	}
	pterm.Info.WithWriter(out).Printfln("Home: %s", client.HomePath(ctx))
	return nil
}

func exchangeCode(cmd *cobra.Command, cfg authclient.Config, code string) (string, error) {
	rp, err := relyingParty(cmd, cfg)
	if err != nil {
		return "", err
	}
	res, err := rp.Exchange(cmd.Context(), code)
	if err != nil {
		return "", fmt.Errorf("exchange authorization code: %w", err)
	}
	return res.IDToken, nil
}

func relyingParty(cmd *cobra.Command, cfg authclient.Config) (*idp.RelyingParty, error) {
	p := cfg.IdentityProvider
	if p.ClientID == "" {
		return nil, errors.New("identity provider is not configured (identity_provider.client_id)")
	}
	return idp.NewRelyingParty(cmd.Context(), idp.Config{
		Issuer:       p.Issuer,
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURL,
		Scopes:       p.Scopes,
	})
}

func displayName(p authclient.Principal) string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Email
}
