package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"verisay/go-client/internal/config"
	"verisay/go-client/internal/devapi"
	"verisay/go-client/internal/domains/contracts"
)

const testAPIKey = "cli-test-key"

type result struct {
	code   int
	out    string
	errOut string
}

type env struct {
	t          *testing.T
	configPath string
	dataDir    string
	wav        string
	png        string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	t.Setenv("VERISAY_PLAIN", "")
	store, err := devapi.OpenStore(filepath.Join(t.TempDir(), "devapi.db"))
	require.NoError(t, err)
	srv := httptest.NewServer(devapi.NewServer(store, devapi.Options{APIKey: testAPIKey}).Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = store.Close()
	})

	dir := t.TempDir()
	cfg := fmt.Sprintf(`api:
  baseURL: %[1]s
  rateLimitRPS: 1000
  rateLimitBurst: 1000
identity:
  endpoint: %[1]s%[2]s
  apiKey: %[3]s
capture:
  backend: file
  cameraPermission: allow
  microphonePermission: allow
storage:
  dataDir: %[4]s
logging:
  level: error
`, srv.URL, devapi.IdentityPrefix, testAPIKey, filepath.Join(dir, "data"))
	configPath := filepath.Join(dir, "verisay.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(cfg), 0o600))

	wav := filepath.Join(dir, "voice.wav")
	require.NoError(t, os.WriteFile(wav, []byte("RIFF\x00\x00\x00\x00WAVEfmt "), 0o600))
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(1, 1, color.RGBA{G: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	face := filepath.Join(dir, "face.png")
	require.NoError(t, os.WriteFile(face, buf.Bytes(), 0o600))

	return &env{t: t, configPath: configPath, dataDir: filepath.Join(dir, "data"), wav: wav, png: face}
}

func (e *env) run(stdin string, args ...string) result {
	e.t.Helper()
	var out, errOut bytes.Buffer
	full := append([]string{"--config", e.configPath}, args...)
	code := run(context.Background(), full, strings.NewReader(stdin), &out, &errOut)
	return result{code: code, out: out.String(), errOut: errOut.String()}
}

func TestCLIAgreementFlow(t *testing.T) {
	e := newEnv(t)

	res := e.run("", "whoami")
	require.Equal(t, exitSessionRequired, res.code)
	require.Contains(t, res.errOut, "Signed out: Please log in to continue.")

	res = e.run("", "signup", "--username", "alice", "--email", "alice@example.test", "--password", "secret-pw")
	require.Equal(t, exitOK, res.code, res.errOut)
	require.Contains(t, res.out, "Welcome, alice (user ")

	res = e.run("", "agreement", "create", "--plain", "--type", "loan", "--audio", e.wav, "--face1", e.png, "--face2", e.png)
	require.Equal(t, exitOK, res.code, res.errOut)
	require.Contains(t, res.out, "Agreement #1 created")
	require.Contains(t, res.errOut, "Creating agreement: done")
	require.Contains(t, res.errOut, "Uploading face photos: done")

	res = e.run("", "home")
	require.Equal(t, exitOK, res.code, res.errOut)
	require.Contains(t, res.out, "Hello, alice")
	require.Contains(t, res.out, "Loan Agreement")
	require.NotContains(t, res.out, "attachments missing")

	res = e.run("", "agreement", "create", "--type", "lease")
	require.Equal(t, exitInvalidInput, res.code)
	require.Contains(t, res.errOut, "Missing Info: Please complete all steps before submitting.")
}

func (e *env) captures() []string {
	e.t.Helper()
	entries, err := os.ReadDir(filepath.Join(e.dataDir, "captures"))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(e.t, err)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func TestCLIAgreementCreateDiscardsCaptures(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, exitOK, e.run("", "signup", "--username", "dana", "--email", "dana@example.test", "--password", "secret-pw").code)

	res := e.run("", "agreement", "create", "--plain", "--audio", e.wav, "--face1", e.png, "--face2", e.png)
	require.Equal(t, exitOK, res.code, res.errOut)
	require.Empty(t, e.captures())

	missing := filepath.Join(t.TempDir(), "missing.png")
	res = e.run("", "agreement", "create", "--plain", "--audio", e.wav, "--face1", e.png, "--face2", missing)
	require.NotEqual(t, exitOK, res.code)
	require.Empty(t, e.captures())
	_, err := os.Stat(e.wav)
	require.NoError(t, err)
}

func TestCLILoginPromptsAndLogout(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, exitOK, e.run("", "signup", "--username", "bob", "--email", "bob@example.test", "--password", "secret-pw").code)
	require.Equal(t, exitOK, e.run("", "logout").code)
	require.Equal(t, exitSessionRequired, e.run("", "whoami").code)

	res := e.run("bob@example.test\nwrong-pw\n", "login")
	require.Equal(t, exitNetworkFailed, res.code)
	require.Contains(t, res.errOut, "Login failed")

	res = e.run("bob@example.test\nsecret-pw\n", "login")
	require.Equal(t, exitOK, res.code, res.errOut)
	require.Contains(t, res.out, "Signed in as bob")

	res = e.run("", "--json", "whoami")
	require.Equal(t, exitOK, res.code, res.errOut)
	var view sessionView
	require.NoError(t, json.Unmarshal([]byte(res.out), &view))
	require.Equal(t, "bob@example.test", view.Email)
	require.Positive(t, view.UserID)
}

func TestCLIProfileEdit(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, exitOK, e.run("", "signup", "--username", "carol", "--email", "carol@example.test", "--password", "secret-pw").code)

	res := e.run("", "profile", "edit", "--name", "Carol C", "--avatar", e.png)
	require.Equal(t, exitOK, res.code, res.errOut)
	require.Contains(t, res.out, "Name:   Carol C")
	require.Contains(t, res.out, "Avatar: blob://")

	res = e.run("", "profile", "show")
	require.Equal(t, exitOK, res.code, res.errOut)
	require.Contains(t, res.out, "Carol C")
}

func TestCLIStorageSecretWrite(t *testing.T) {
	e := newEnv(t)
	res := e.run("", "storage", "new-secret", "--write")
	require.Equal(t, exitOK, res.code, res.errOut)
	require.Len(t, strings.Fields(res.out), 12)

	res = e.run("", "storage", "new-secret", "--write")
	require.Equal(t, exitInvalidInput, res.code)
	require.Contains(t, res.errOut, "already exists")
}

func TestCLIVersionAndBadFlags(t *testing.T) {
	var out, errOut bytes.Buffer
	require.Equal(t, exitOK, run(context.Background(), []string{"version"}, strings.NewReader(""), &out, &errOut))
	require.Contains(t, out.String(), "verisay version=dev")

	out.Reset()
	require.Equal(t, exitInvalidInput, run(context.Background(), []string{"home", "--bogus"}, strings.NewReader(""), &out, &errOut))
}

func TestExitCodes(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{contracts.NewFlowError(contracts.KindSessionRequired, "x", nil), exitSessionRequired},
		{contracts.NewFlowError(contracts.KindCaptureCancelled, "x", nil), exitCaptureAborted},
		{contracts.NewFlowError(contracts.KindAttachmentUploadFailed, "x", nil), exitIncomplete},
		{contracts.NewFlowError(contracts.KindMetadataCreateFailed, "x", nil), exitNetworkFailed},
		{fmt.Errorf("load: %w", config.ErrInvalidConfig), exitInvalidInput},
		{errors.New("disk on fire"), exitFailure},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, exitCode(tc.err), tc.err.Error())
	}
}
