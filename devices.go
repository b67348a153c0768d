package main

import (
	"context"
	"iter"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/axm-go/internal/axm"
	"github.com/tonimelisma/axm-go/internal/export"
)

// Default file names used when --output is given without a value.
const (
	orgDevicesFile    = "orgDevices.csv"
	mdmServersFile    = "appleMdmServers.csv"
	serverDevicesFile = "mdmServerDevices.csv"
)

// addOutputFlag registers --output/-o. A bare --output writes to def.
func addOutputFlag(cmd *cobra.Command, target *string, def string) {
	cmd.Flags().StringVarP(target, "output", "o", "", "write CSV to this file (bare flag: "+def+")")
	cmd.Flags().Lookup("output").NoOptDefVal = def
}

func newDevicesCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Export all organization devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCollection(cmd, "org devices", output, func(ctx context.Context, c *axm.Client) iter.Seq2[axm.Resource, error] {
				return c.OrgDevices(ctx)
			})
		},
	}

	addOutputFlag(cmd, &output, orgDevicesFile)

	return cmd
}

func newServersCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "servers",
		Short: "List MDM servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCollection(cmd, "mdm servers", output, func(ctx context.Context, c *axm.Client) iter.Seq2[axm.Resource, error] {
				return c.MDMServers(ctx)
			})
		},
	}

	addOutputFlag(cmd, &output, mdmServersFile)
	cmd.AddCommand(newServerDevicesCmd())

	return cmd
}

func newServerDevicesCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "devices SERVER_ID",
		Short: "List the devices assigned to an MDM server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serverID := args[0]

			return runCollection(cmd, "mdm server devices", output, func(ctx context.Context, c *axm.Client) iter.Seq2[axm.Resource, error] {
				return c.MDMServerDevices(ctx, serverID)
			})
		},
	}

	addOutputFlag(cmd, &output, serverDevicesFile)

	return cmd
}

// runCollection drains a paged listing and emits it as one table.
func runCollection(cmd *cobra.Command, what, output string,
	list func(context.Context, *axm.Client) iter.Seq2[axm.Resource, error],
) error {
	cc := mustCLIContext(cmd.Context())

	client, err := cc.Client()
	if err != nil {
		return err
	}

	cc.Logger.Info("listing started", slog.String("collection", what))

	resources, err := axm.Collect(list(cmd.Context(), client))
	if err != nil {
		return err
	}

	cc.Logger.Info("listing complete",
		slog.String("collection", what),
		slog.Int("records", len(resources)),
	)

	return cc.emitRecords(cmd.OutOrStdout(), export.Records(resources), export.ResourceColumns, output)
}
