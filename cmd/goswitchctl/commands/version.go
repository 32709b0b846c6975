package commands

import (
	"github.com/spf13/cobra"

	appversion "github.com/dantte-lp/goswitch/internal/version"
)

// versionResponse mirrors GET /api/v1/version.
type versionResponse struct {
	Version string `json:"version" yaml:"version"`
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print client and daemon build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.Println(appversion.Full("goswitchctl"))

			var vr versionResponse
			if err := apiGet("/api/v1/version", &vr); err != nil {
				cmd.Println("daemon: unreachable")
				return nil
			}
			cmd.Println("daemon:", vr.Version)
			return nil
		},
	}
}
