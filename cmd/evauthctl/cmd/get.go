package cmd

import (
	"bytes"
	"encoding/json"
	"net/url"

	authclient "github.com/evdealer/authclient"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newGetCmd(g *globalOptions) *cobra.Command {
	var query map[string]string
	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Send an authenticated GET to the backend",
		Example: `  evauthctl get /vehicles
  evauthctl get /vehicles --query model=VF8`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, release, err := g.newClient(cmd)
			if err != nil {
				return err
			}
			defer release()

			req := authclient.Request{Path: args[0]}
			if len(query) > 0 {
				req.Query = url.Values{}
				for k, v := range query {
					req.Query.Set(k, v)
				}
			}
			resp, err := client.Do(cmd.Context(), req)
			if err != nil {
				if authclient.NeedsLogin(err) {
					pterm.Warning.WithWriter(cmd.ErrOrStderr()).Println("Session missing or rejected; run 'evauthctl login'")
				}
				return describe(client.Config(), err)
			}

			out := cmd.OutOrStdout()
			var pretty bytes.Buffer
			if json.Indent(&pretty, resp.Body, "", "  ") == nil {
				pretty.WriteByte('\n')
				_, err = pretty.WriteTo(out)
				return err
			}
			_, err = out.Write(resp.Body)
			return err
		},
	}
	cmd.Flags().StringToStringVar(&query, "query", nil, "Query parameters as key=value")
	return cmd
}
