package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/axm-go/internal/axm"
)

// artifactPerms is the mode of saved activity logs.
const artifactPerms = 0o644

var activityShort = map[axm.ActivityKind]string{
	axm.ActivityAssign:   "Assign devices to an MDM server",
	axm.ActivityUnassign: "Unassign devices from an MDM server",
}

func newActivityCmd(kind axm.ActivityKind) *cobra.Command {
	var (
		serverID string
		file     string
		dir      string
	)

	verb := strings.ToLower(strings.TrimSuffix(string(kind), "_DEVICES"))

	cmd := &cobra.Command{
		Use:   verb + " --server ID [SERIAL...]",
		Short: activityShort[kind],
		Long: fmt.Sprintf(`Create an %s activity for the given devices, wait for it to finish,
and save the activity log the server produces.

Serials come from the arguments, from --file, or from %s in the
current directory when neither is given.`, string(kind), defaultSerialsFile),
		RunE: func(cmd *cobra.Command, args []string) error {
			serials, err := collectSerials(args, file)
			if err != nil {
				return err
			}

			return runActivity(cmd, kind, serverID, serials, dir)
		},
	}

	cmd.Flags().StringVar(&serverID, "server", "", "MDM server ID")
	cmd.Flags().StringVarP(&file, "file", "f", "", "file with one serial number per line")
	cmd.Flags().StringVar(&dir, "dir", ".", "directory to save the activity log in")

	if err := cmd.MarkFlagRequired("server"); err != nil {
		panic(err)
	}

	return cmd
}

// activityOutput is the JSON schema for `assign --json` and `unassign --json`.
type activityOutput struct {
	ActivityID  string     `json:"activity_id"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	SubStatus   string     `json:"sub_status,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	LogFile     string     `json:"log_file,omitempty"`
}

func runActivity(cmd *cobra.Command, kind axm.ActivityKind, serverID string, serials []string, dir string) error {
	cc := mustCLIContext(cmd.Context())

	client, err := cc.Client()
	if err != nil {
		return err
	}

	poller := axm.NewPoller(client, axm.PollerConfig{
		Settle:       cc.Cfg.ActivitySettle,
		PollInterval: cc.Cfg.ActivityPollInterval,
		MaxPolls:     cc.Cfg.ActivityMaxPolls,
		Logger:       cc.Logger,
	})

	cc.Statusf("Submitting %s for %d device(s) to server %s...\n", kind, len(serials), serverID)

	res, err := poller.RunActivity(cmd.Context(), kind, serials, serverID)
	if err != nil {
		return err
	}

	var saved string

	if res.Artifact != nil {
		saved, err = saveArtifact(dir, res.Filename, res.Artifact)
		if err != nil {
			return err
		}

		cc.Logger.Info("activity log saved", slog.String("path", saved))
	}

	act := res.Activity

	if cc.Flags.JSON {
		return writeJSON(cmd.OutOrStdout(), activityOutput{
			ActivityID:  act.ID,
			Kind:        string(act.Kind),
			Status:      string(act.Status),
			SubStatus:   act.SubStatus,
			CreatedAt:   timePtr(act.CreatedAt),
			CompletedAt: timePtr(act.CompletedAt),
			LogFile:     saved,
		})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Activity:  %s\n", act.ID)
	fmt.Fprintf(w, "Status:    %s\n", act.Status)

	if act.SubStatus != "" {
		fmt.Fprintf(w, "Detail:    %s\n", act.SubStatus)
	}

	fmt.Fprintf(w, "Completed: %s\n", formatTime(act.CompletedAt))

	if saved != "" {
		fmt.Fprintf(w, "Log:       %s\n", saved)
	} else {
		fmt.Fprintln(w, "Log:       (none offered)")
	}

	return nil
}

// saveArtifact writes data into dir under the base of name.
func saveArtifact(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}

	path := filepath.Join(dir, filepath.Base(name))

	if err := os.WriteFile(path, data, artifactPerms); err != nil {
		return "", fmt.Errorf("saving activity log: %w", err)
	}

	return path, nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}

	u := t.UTC()

	return &u
}
