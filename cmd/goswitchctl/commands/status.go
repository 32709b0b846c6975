package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// statusResponse mirrors GET /api/v1/status.
type statusResponse struct {
	DatapathID   string    `json:"datapath_id" yaml:"datapath_id"`
	Connected    bool      `json:"controller_connected" yaml:"controller_connected"`
	FailMode     string    `json:"fail_mode" yaml:"fail_mode"`
	FlowCount    int       `json:"flow_count" yaml:"flow_count"`
	MaxFlows     int       `json:"max_flows" yaml:"max_flows"`
	LookupCount  uint64    `json:"lookup_count" yaml:"lookup_count"`
	MatchedCount uint64    `json:"matched_count" yaml:"matched_count"`
	MissSendLen  uint16    `json:"miss_send_len" yaml:"miss_send_len"`
	StartedAt    time.Time `json:"started_at" yaml:"started_at"`
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show switch status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var st statusResponse
			if err := apiGet("/api/v1/status", &st); err != nil {
				return err
			}

			if outputFormat != formatTable {
				out, err := render(st, outputFormat)
				if err != nil {
					return err
				}
				cmd.Println(out)
				return nil
			}

			rows := [][]string{
				{"Datapath ID", st.DatapathID},
				{"Controller", boolMark(st.Connected)},
				{"Fail mode", st.FailMode},
				{"Flows", fmt.Sprintf("%d / %d", st.FlowCount, st.MaxFlows)},
				{"Lookups", fmt.Sprintf("%d", st.LookupCount)},
				{"Matches", fmt.Sprintf("%d", st.MatchedCount)},
				{"Miss send len", fmt.Sprintf("%d", st.MissSendLen)},
				{"Uptime", time.Since(st.StartedAt).Round(time.Second).String()},
			}
			cmd.Print(table([]string{"FIELD", "VALUE"}, rows))
			return nil
		},
	}
}
