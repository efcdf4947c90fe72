package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestClassifyBuiltins(t *testing.T) {
	out, err := execute(t, "classify",
		"--ua", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/58.0.3029.110 Safari/537.36",
		"--via", "1.1 squid/3.5.20",
		"--server", "Apache/2.4.1 (Unix) OpenSSL/1.0.2",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "chrome")
	assert.Contains(t, out, "3.5.20")
	assert.Contains(t, out, "OpenSSL")
}

func TestClassifyRequiresInput(t *testing.T) {
	_, err := execute(t, "classify")
	assert.Error(t, err)
}

func TestScanRequestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "req.txt")
	req := "GET /mail/ HTTP/1.1\r\nHost: mail.google.com\r\nUser-Agent: curl/7.54.0\r\n\r\n"
	require.NoError(t, os.WriteFile(path, []byte(req), 0o600))

	out, err := execute(t, "scan", "--format", "json", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"source":"`+path+`"`)
	assert.Contains(t, out, `"kind":"request"`)
	assert.Contains(t, out, `"payload":"gmail"`)
}

func TestScanRejectsNonHTTP(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.bin")
	require.NoError(t, os.WriteFile(path, []byte("\x00\x01\x02"), 0o600))

	_, err := execute(t, "scan", path)
	assert.Error(t, err)
}

func TestBundleAndValidate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agents.txt"), []byte("CorpBrowser\n"), 0o600))
	cfgPath := filepath.Join(dir, "appid.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`configVersion: 1
detection:
  userAgents:
    - patternsFile: agents.txt
      client: "6001"
`), 0o600))

	out, err := execute(t, "validate", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "config ok")

	bundlePath := filepath.Join(dir, "patterns.bundle")
	out, err = execute(t, "bundle", "-c", cfgPath, "-o", bundlePath)
	require.NoError(t, err)
	assert.Contains(t, out, "written to "+bundlePath)
	_, err = os.Stat(bundlePath)
	assert.NoError(t, err)
}
