package main

import (
	"database/sql"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/fee"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	conf   *core.Config
	logger core.Logger
	db     *sql.DB
	store  fee.Store
	roster fee.RosterProvider
	out    io.Writer
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Operator commands of the fee ledger",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Usage()
			return errHelp
		},
	}
	root.SetOut(cli.out)
	root.SetErr(cli.out)
	root.AddCommand(cli.migrateCmd(), cli.verifyCmd(), cli.assignCmd())
	return root
}

// run executes the command line; args[0] is the program name.
func (cli *commandLine) run(args []string) error {
	root := cli.rootCmd()
	if len(args) > 0 {
		args = args[1:]
	}
	root.SetArgs(args)
	return root.Execute()
}

// requiredFlag prints the usage of cmd when a mandatory flag is blank.
func requiredFlag(cmd *cobra.Command, val string) error {
	if core.CleanString(val) == "" {
		_ = cmd.Usage()
		return errHelp
	}
	return nil
}
