package cli

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GabrielNunesIT/cwlogs-connector/internal/config"
	"github.com/GabrielNunesIT/cwlogs-connector/internal/testutil"
)

func writePayload(t *testing.T, dir, name, batch string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, testutil.Gzip(t, batch), 0644))
	return path
}

func runDecodeCmd(t *testing.T, stdin []byte, args ...string) (string, string, error) {
	t.Helper()
	level := "info"
	cmd := NewDecodeCmd(&level)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(bytes.NewReader(stdin))
	cmd.SetArgs(append([]string{}, args...))
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func lines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

func TestDecode_IndexFormat(t *testing.T) {
	path := writePayload(t, t.TempDir(), "access.gz", testutil.AccessLogBatch)

	out, _, err := runDecodeCmd(t, nil, "--index-prefix", "logs-", path)
	require.NoError(t, err)

	got := lines(out)
	require.Len(t, got, 2)

	var doc struct {
		Index    string                     `json:"index"`
		Category string                     `json:"category"`
		ID       string                     `json:"id"`
		Source   map[string]json.RawMessage `json:"source"`
	}
	require.NoError(t, json.Unmarshal([]byte(got[0]), &doc))
	assert.Equal(t, "logs-2015.01.13", doc.Index)
	assert.Equal(t, "Apache/access.log", doc.Category)
	assert.Equal(t, testutil.EventID1, doc.ID)
	assert.JSONEq(t, `"127.0.0.1 frank GET 200 4535"`, string(doc.Source["@message"]))

	var fields map[string]any
	require.NoError(t, json.Unmarshal(doc.Source["$"], &fields))
	assert.Equal(t, float64(200), fields["status_code"])
	assert.Equal(t, "frank", fields["user"])
}

func TestDecode_ArchivalAndConsole(t *testing.T) {
	path := writePayload(t, t.TempDir(), "access.gz", testutil.AccessLogBatch)

	out, _, err := runDecodeCmd(t, nil, "--format", "archival", path)
	require.NoError(t, err)

	var rec struct {
		ID              string            `json:"id"`
		LogGroup        string            `json:"logGroup"`
		ExtractedFields map[string]string `json:"extractedFields"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines(out)[1]), &rec))
	assert.Equal(t, testutil.EventID2, rec.ID)
	assert.Equal(t, "Apache/access.log", rec.LogGroup)
	assert.Equal(t, "404", rec.ExtractedFields["status_code"])

	out, _, err = runDecodeCmd(t, nil, "--format", "console", path)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Tue Jan 13 02:28:53 UTC 2015 - 127.0.0.1 frank GET 200 4535",
		"Tue Jan 13 02:29:03 UTC 2015 - 127.0.0.1 alice POST 404 34",
	}, lines(out))
}

func TestDecode_Base64Stdin(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(testutil.Gzip(t, testutil.LambdaBatch))

	out, _, err := runDecodeCmd(t, []byte(encoded+"\n"), "--base64", "--format", "console")
	require.NoError(t, err)
	assert.Len(t, lines(out), 2)
}

func TestDecode_SkippedPayloadsContinue(t *testing.T) {
	dir := t.TempDir()
	control := writePayload(t, dir, "control.gz", testutil.ControlMessageBatch)
	access := writePayload(t, dir, "access.gz", testutil.AccessLogBatch)

	out, errOut, err := runDecodeCmd(t, nil, "--format", "console", control, access)
	require.NoError(t, err)
	assert.Len(t, lines(out), 2)
	assert.Contains(t, errOut, "reason=control_message")
}

func TestDecode_Errors(t *testing.T) {
	path := writePayload(t, t.TempDir(), "access.gz", testutil.AccessLogBatch)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown format", []string{"--format", "xml", path}, "unknown format"},
		{"unknown json mode", []string{"--json-field-mode", "merge", path}, "unknown json field mode"},
		{"missing file", []string{"/nonexistent/payload.gz"}, "reading /nonexistent/payload.gz"},
		{"bad base64", []string{"--base64", path}, "decoding base64"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runDecodeCmd(t, nil, tt.args...)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestApplyCLIOverrides(t *testing.T) {
	cmd := NewRunCmd(new(string), new(string))
	require.NoError(t, cmd.ParseFlags([]string{
		"--stdin", "--dir", "/var/spool/cwl", "--stdout-format", "json", "--ops-address", ":9464",
	}))

	cfg := config.Defaults()
	cfg.Emitters.Stdout.Enabled = false
	applyCLIOverrides(cmd, &cfg)

	assert.True(t, cfg.Ingestors.Stdin.Enabled)
	assert.True(t, cfg.Ingestors.Dir.Enabled)
	assert.Equal(t, "/var/spool/cwl", cfg.Ingestors.Dir.Path)
	assert.False(t, cfg.Emitters.Stdout.Enabled)
	assert.Equal(t, "json", cfg.Emitters.Stdout.Format)
	assert.Equal(t, ":9464", cfg.Ops.Address)

	// Unset flags leave the config alone.
	plain := NewRunCmd(new(string), new(string))
	require.NoError(t, plain.ParseFlags(nil))
	cfg = config.Defaults()
	applyCLIOverrides(plain, &cfg)
	assert.Equal(t, config.Defaults(), cfg)
}

func TestEffectiveLevel(t *testing.T) {
	assert.Equal(t, "debug", effectiveLevel("debug", "error"))
	assert.Equal(t, "error", effectiveLevel("", "error"))
}

func TestValidateAndVersion(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("document:\n  indexprefix: audit-\ningestors:\n  stdin:\n    enabled: true\n"), 0644))

	run := func(cmd *cobra.Command) string {
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{})
		require.NoError(t, cmd.Execute())
		return out.String()
	}

	out := run(NewValidateCmd(&cfgPath))
	assert.Contains(t, out, "Ingestors: 1 enabled")
	assert.Contains(t, out, "Emitters:  1 enabled")
	assert.Contains(t, out, "Index prefix: audit-")

	assert.Contains(t, run(NewVersionCmd()), "cwlogs-connector dev")
}
