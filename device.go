package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/axm-go/internal/axm"
	"github.com/tonimelisma/axm-go/internal/export"
)

// defaultSerialsFile is read when no serials are given on the command line.
const defaultSerialsFile = "serialnumbers.txt"

// errLookupFailed is returned when not a single serial produced data.
var errLookupFailed = errors.New("no serial returned data")

// lookup fetches the records for one serial. A nil slice with a nil error
// means the serial exists but has nothing to export.
type lookup func(ctx context.Context, c *axm.Client, serial string) ([]axm.Resource, error)

// lookupKind describes one `device` subcommand.
type lookupKind struct {
	use     string
	short   string
	file    string
	leading []string
	fetch   lookup
}

var lookupKinds = []lookupKind{
	{
		use:     "info",
		short:   "Fetch device details by serial number",
		file:    "Devices_details.csv",
		leading: export.DeviceColumns,
		fetch: func(ctx context.Context, c *axm.Client, serial string) ([]axm.Resource, error) {
			r, err := c.Device(ctx, serial)
			if err != nil {
				return nil, err
			}

			return []axm.Resource{*r}, nil
		},
	},
	{
		use:     "server",
		short:   "Fetch the MDM server each device is assigned to",
		file:    "assignedServer_details.csv",
		leading: export.ServerColumns,
		fetch: func(ctx context.Context, c *axm.Client, serial string) ([]axm.Resource, error) {
			r, err := c.AssignedServer(ctx, serial)
			if err != nil || r == nil {
				return nil, err
			}

			return []axm.Resource{*r}, nil
		},
	},
	{
		use:     "coverage",
		short:   "Fetch AppleCare coverage for each device",
		file:    "appleCareCoverage_details.csv",
		leading: export.CoverageColumns,
		fetch: func(ctx context.Context, c *axm.Client, serial string) ([]axm.Resource, error) {
			list, err := c.AppleCareCoverage(ctx, serial)
			if errors.Is(err, axm.ErrNoCoverage) {
				return nil, nil
			}

			return list, err
		},
	},
}

func newDeviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Look up devices by serial number",
	}

	for _, k := range lookupKinds {
		cmd.AddCommand(newLookupCmd(k))
	}

	return cmd
}

func newLookupCmd(k lookupKind) *cobra.Command {
	var (
		file   string
		output string
	)

	cmd := &cobra.Command{
		Use:   k.use + " [SERIAL...]",
		Short: k.short,
		Long: k.short + `.

Serials come from the arguments, from --file, or from ` + defaultSerialsFile + ` in
the current directory when neither is given. A JSON summary of serials that
were not found, had no data, or failed is printed to stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			serials, err := collectSerials(args, file)
			if err != nil {
				return err
			}

			return runLookup(cmd, k, serials, output)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "file with one serial number per line")
	addOutputFlag(cmd, &output, k.file)

	return cmd
}

// collectSerials merges positional serials with those read from file.
func collectSerials(args []string, file string) ([]string, error) {
	if len(args) == 0 && file == "" {
		file = defaultSerialsFile
	}

	serials := append([]string(nil), args...)

	if file != "" {
		fromFile, err := export.ReadSerials(file)
		if err != nil {
			return nil, err
		}

		serials = append(serials, fromFile...)
	}

	return serials, nil
}

func runLookup(cmd *cobra.Command, k lookupKind, serials []string, output string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	client, err := cc.Client()
	if err != nil {
		return err
	}

	summary := export.NewSummary()

	var records []export.Record

	for i, serial := range serials {
		cc.Logger.Info("looking up device",
			slog.String("lookup", k.use),
			slog.String("serial", serial),
			slog.Int("index", i+1),
			slog.Int("total", len(serials)),
		)

		list, err := k.fetch(ctx, client, serial)

		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, axm.ErrNotFound):
			summary.NotFound(serial)
		case err != nil:
			cc.Logger.Warn("device lookup failed",
				slog.String("serial", serial),
				slog.String("error", err.Error()),
			)
			summary.Error(serial, err)
		case len(list) == 0:
			summary.NoData(serial)
		default:
			summary.Found(serial)

			for _, r := range list {
				records = append(records, export.Record{Serial: serial, Resource: r})
			}
		}
	}

	if err := summary.Write(cmd.ErrOrStderr()); err != nil {
		return err
	}

	if len(records) > 0 {
		if err := cc.emitRecords(cmd.OutOrStdout(), records, k.leading, output); err != nil {
			return err
		}
	} else {
		cc.Statusf("No data to export.\n")
	}

	if summary.Failures() == len(serials) {
		return fmt.Errorf("device %s: %w", k.use, errLookupFailed)
	}

	return nil
}
