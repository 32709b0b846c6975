package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// flowEntry mirrors one element of GET /api/v1/flows.
type flowEntry struct {
	Index     int       `json:"index" yaml:"index"`
	Priority  uint16    `json:"priority" yaml:"priority"`
	Cookie    uint64    `json:"cookie" yaml:"cookie"`
	Match     string    `json:"match" yaml:"match"`
	Actions   []string  `json:"actions" yaml:"actions"`
	Hits      uint64    `json:"hits" yaml:"hits"`
	Bytes     uint64    `json:"bytes" yaml:"bytes"`
	Installed time.Time `json:"installed" yaml:"installed"`
	LastMatch time.Time `json:"last_match" yaml:"last_match"`
}

// flowsResponse mirrors GET /api/v1/flows.
type flowsResponse struct {
	Flows []flowEntry `json:"flows" yaml:"flows"`
}

func flowsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flows",
		Short: "List the flow table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var fr flowsResponse
			if err := apiGet("/api/v1/flows", &fr); err != nil {
				return err
			}

			if outputFormat != formatTable {
				out, err := render(fr, outputFormat)
				if err != nil {
					return err
				}
				cmd.Println(out)
				return nil
			}

			if len(fr.Flows) == 0 {
				cmd.Println("flow table is empty")
				return nil
			}

			rows := make([][]string, 0, len(fr.Flows))
			for _, f := range fr.Flows {
				actions := "drop"
				if len(f.Actions) > 0 {
					actions = strings.Join(f.Actions, ",")
				}
				rows = append(rows, []string{
					fmt.Sprintf("%d", f.Index),
					fmt.Sprintf("%d", f.Priority),
					f.Match,
					actions,
					fmt.Sprintf("%d", f.Hits),
					fmt.Sprintf("%d", f.Bytes),
					ago(f.LastMatch),
				})
			}
			cmd.Print(table(
				[]string{"IDX", "PRIO", "MATCH", "ACTIONS", "HITS", "BYTES", "LAST MATCH"},
				rows,
			))
			return nil
		},
	}
}
