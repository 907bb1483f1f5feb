package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/feeledger/core/fee"
)

var errInconsistentLedger = errors.New("inconsistent ledger rows found")

func (cli *commandLine) verifyCmd() *cobra.Command {
	var school string
	cmd := &cobra.Command{
		Use:   "verify --school SCHOOL",
		Short: "Check the amounts and the derived status of every ledger row of a school",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requiredFlag(cmd, school); err != nil {
				return err
			}
			return cli.verify(cmd.Context(), school)
		},
	}
	cmd.Flags().StringVar(&school, "school", "", "The school id")
	return cmd
}

// verify is read-only: broken rows are reported, never repaired.
func (cli *commandLine) verify(ctx context.Context, school string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	pmts, err := cli.store.QueryPayments(ctx, fee.PaymentFilter{SchoolID: school}, nil)
	if err != nil {
		return errors.Wrap(err, "querying fee assignments")
	}

	var broken int
	for _, p := range pmts {
		if err := p.CheckInvariants(); err != nil {
			broken++
			_, _ = fmt.Fprintf(cli.out, "%s (student %s): %v\n", p.ID, p.StudentID, err)
		}
	}
	_, _ = fmt.Fprintf(cli.out, "%d fee assignments checked, %d inconsistent\n", len(pmts), broken)
	if broken > 0 {
		cli.logger.Warn("inconsistent ledger rows", map[string]interface{}{"school_id": school, "count": broken})
		return errInconsistentLedger
	}
	return nil
}
