package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/fee"
)

var cliActor = core.Actor{ID: "admin-cli", Name: "admin-cli"}

func (cli *commandLine) assignCmd() *cobra.Command {
	var school, file string
	cmd := &cobra.Command{
		Use:   "assign --school SCHOOL --file FILE",
		Short: "Run a fee assignment described by a JSON file (same body as POST /assignments)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requiredFlag(cmd, school); err != nil {
				return err
			}
			if err := requiredFlag(cmd, file); err != nil {
				return err
			}
			return cli.assign(cmd.Context(), school, file)
		},
	}
	cmd.Flags().StringVar(&school, "school", "", "The school id")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to the JSON assignment input")
	return cmd
}

func (cli *commandLine) assign(ctx context.Context, school, file string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return errors.Wrap(err, "reading assignment input")
	}
	var in fee.AssignInput
	if err = json.Unmarshal(data, &in); err != nil {
		return errors.Wrap(err, "decoding assignment input")
	}
	in.Actor = cliActor

	svc := fee.NewAssignmentService(cli.store, cli.roster, cli.logger, fee.NopMetrics, cli.conf.Ledger.AssignChunkSize)
	res, err := svc.AssignToStudents(ctx, school, in)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cli.out)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Created int              `json:"created"`
		Skipped int              `json:"skipped"`
		Skips   []fee.AssignSkip `json:"skips"`
	}{res.Created, res.Skipped, res.Skips})
}
