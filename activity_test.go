package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/axm-go/internal/axm"
)

// newActivityServer accepts one activity and reports finalStatus on the
// second poll. A completed activity offers a log file.
func newActivityServer(t *testing.T, finalStatus string) *httptest.Server {
	t.Helper()

	var (
		polls atomic.Int32
		srv   *httptest.Server
	)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /orgDeviceActivities", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		writeJSONResponse(w, http.StatusCreated, `{"data":{"type":"orgDeviceActivities","id":"act-9","attributes":{"status":"IN_PROGRESS"}}}`)
	})
	mux.HandleFunc("GET /orgDeviceActivities/act-9", func(w http.ResponseWriter, _ *http.Request) {
		status := "IN_PROGRESS"
		if polls.Add(1) >= 2 {
			status = finalStatus
		}

		download := ""
		if status == "COMPLETED" {
			download = fmt.Sprintf(`,"completedDateTime":"2026-03-01T12:00:00Z","downloadUrl":%q`, srv.URL+"/files/log?sig=abc")
		}

		writeJSONResponse(w, http.StatusOK, `{"data":{"type":"orgDeviceActivities","id":"act-9","attributes":{"status":"`+
			status+`","subStatus":"`+status+`_DETAIL"`+download+`}}}`)
	})
	mux.HandleFunc("GET /files/log", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="../AssignResult.csv"`)
		fmt.Fprint(w, "serialNumber,result\nS1,SUCCESS\n")
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func TestRunActivity_SavesLog(t *testing.T) {
	srv := newActivityServer(t, "COMPLETED")
	cmd, stdout, _ := newTestCmd(newTestCLIContext(t, srv.URL))

	dir := filepath.Join(t.TempDir(), "logs")
	require.NoError(t, runActivity(cmd, axm.ActivityAssign, "MDM-1", []string{"S1"}, dir))

	data, err := os.ReadFile(filepath.Join(dir, "AssignResult.csv"))
	require.NoError(t, err)
	assert.Equal(t, "serialNumber,result\nS1,SUCCESS\n", string(data))

	out := stdout.String()
	assert.Contains(t, out, "Activity:  act-9")
	assert.Contains(t, out, "Status:    COMPLETED")
	assert.Contains(t, out, filepath.Join(dir, "AssignResult.csv"))
	assert.NotContains(t, out, "sig=abc")
}

func TestRunActivity_JSON(t *testing.T) {
	srv := newActivityServer(t, "COMPLETED")
	cc := newTestCLIContext(t, srv.URL)
	cc.Flags.JSON = true
	cmd, stdout, _ := newTestCmd(cc)

	dir := t.TempDir()
	require.NoError(t, runActivity(cmd, axm.ActivityUnassign, "MDM-1", []string{"S1", "S2"}, dir))

	var got activityOutput
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &got))
	assert.Equal(t, "act-9", got.ActivityID)
	assert.Equal(t, string(axm.ActivityUnassign), got.Kind)
	assert.Equal(t, "COMPLETED", got.Status)
	assert.Equal(t, filepath.Join(dir, "AssignResult.csv"), got.LogFile)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, 2026, got.CompletedAt.Year())
}

func TestRunActivity_Failed(t *testing.T) {
	srv := newActivityServer(t, "FAILED")
	cmd, stdout, _ := newTestCmd(newTestCLIContext(t, srv.URL))

	err := runActivity(cmd, axm.ActivityAssign, "MDM-1", []string{"S1"}, t.TempDir())
	require.ErrorIs(t, err, axm.ErrActivityFailed)

	var actErr *axm.ActivityError
	require.ErrorAs(t, err, &actErr)
	assert.Equal(t, "act-9", actErr.ActivityID)
	assert.Empty(t, stdout.String())
}

func TestRunActivity_Timeout(t *testing.T) {
	srv := newActivityServer(t, "IN_PROGRESS")
	cc := newTestCLIContext(t, srv.URL)
	cc.Cfg.ActivityMaxPolls = 2
	cmd, _, _ := newTestCmd(cc)

	err := runActivity(cmd, axm.ActivityAssign, "MDM-1", []string{"S1"}, t.TempDir())
	require.ErrorIs(t, err, axm.ErrActivityTimeout)
}

func TestActivityCmd_RequiresServer(t *testing.T) {
	cmd := newActivityCmd(axm.ActivityAssign)
	assert.Equal(t, "assign", cmd.Name())

	flag := cmd.Flags().Lookup("server")
	require.NotNil(t, flag)
	assert.Equal(t, []string{"true"}, flag.Annotations["cobra_annotation_bash_completion_one_required_flag"])

	assert.Equal(t, "unassign", newActivityCmd(axm.ActivityUnassign).Name())
}

func TestSaveArtifact_StripsDirectories(t *testing.T) {
	dir := t.TempDir()

	path, err := saveArtifact(dir, "../../etc/evil.csv", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "evil.csv"), path)
}
