package main

import (
	"fmt"
	"strconv"

	"github.com/hugolhafner/go-connect/checkpoint"
	"github.com/hugolhafner/go-connect/internal/app"
	"github.com/spf13/cobra"
)

func newStateCmd() *cobra.Command {
	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or change the checkpoint of a stopped connector",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the last committed offset",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withState(
				cmd, func(ds *checkpoint.DataState) error {
					off, err := ds.LastOffset()
					if err != nil {
						return err
					}
					if off == checkpoint.NoOffset {
						cmd.Printf("%s: no checkpoint\n", ds.Topic())
						return nil
					}
					cmd.Printf("%s: %d\n", ds.Topic(), off)
					return nil
				},
			)
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <offset>",
		Short: "Overwrite the last committed offset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			off, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || off < checkpoint.NoOffset {
				return fmt.Errorf("invalid offset %q", args[0])
			}
			return withState(
				cmd, func(ds *checkpoint.DataState) error {
					if err := ds.SetLastOffset(off); err != nil {
						return err
					}
					cmd.Printf("%s: checkpoint set to %d\n", ds.Topic(), off)
					return nil
				},
			)
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the checkpoint so the next start replays from the earliest offset",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withState(
				cmd, func(ds *checkpoint.DataState) error {
					if err := ds.SetLastOffset(checkpoint.NoOffset); err != nil {
						return err
					}
					cmd.Printf("%s: checkpoint cleared\n", ds.Topic())
					return nil
				},
			)
		},
	}

	stateCmd.AddCommand(showCmd, setCmd, resetCmd)
	return stateCmd
}

func withState(cmd *cobra.Command, fn func(ds *checkpoint.DataState) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ds, closeFn, err := app.OpenState(cfg)
	if err != nil {
		return err
	}

	if err := fn(ds); err != nil {
		_ = closeFn()
		return err
	}
	return closeFn()
}
