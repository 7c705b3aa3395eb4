package client

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"verisay/go-client/internal/config"
	"verisay/go-client/internal/devapi"
	"verisay/go-client/internal/domains/contracts"
	profileusecase "verisay/go-client/internal/domains/profile/usecase"
	"verisay/go-client/pkg/models"
)

const testAPIKey = "client-test-key"

func startDevAPI(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := devapi.OpenStore(filepath.Join(t.TempDir(), "devapi.db"))
	require.NoError(t, err)
	srv := httptest.NewServer(devapi.NewServer(store, devapi.Options{APIKey: testAPIKey}).Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = store.Close()
	})
	return srv
}

func testConfig(t *testing.T, srv *httptest.Server) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Blobs.Dir = filepath.Join(cfg.Storage.DataDir, "blobs")
	cfg.API.BaseURL = srv.URL
	cfg.API.RateLimitRPS = 1000
	cfg.API.RateLimitBurst = 1000
	cfg.Identity.Endpoint = srv.URL + devapi.IdentityPrefix
	cfg.Identity.APIKey = testAPIKey
	cfg.Capture.CameraPolicy = config.PermissionAllow
	cfg.Capture.MicrophonePolicy = config.PermissionAllow
	return cfg
}

func buildApp(t *testing.T, cfg config.Config, srv *httptest.Server) *App {
	t.Helper()
	app, err := Build(context.Background(), cfg, Options{
		Stdin:      strings.NewReader(""),
		Stderr:     io.Discard,
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)
	return app
}

func writeFixtures(t *testing.T) (wavPath, pngPath string) {
	t.Helper()
	dir := t.TempDir()
	wavPath = filepath.Join(dir, "voice.wav")
	require.NoError(t, os.WriteFile(wavPath, []byte("RIFF\x00\x00\x00\x00WAVEfmt "), 0o600))

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		img.Set(x, x, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	pngPath = filepath.Join(dir, "face.png")
	require.NoError(t, os.WriteFile(pngPath, buf.Bytes(), 0o600))
	return wavPath, pngPath
}

func TestAppSignupSubmitAndHome(t *testing.T) {
	srv := startDevAPI(t)
	cfg := testConfig(t, srv)
	app := buildApp(t, cfg, srv)
	ctx := context.Background()

	_, err := app.Session()
	require.ErrorIs(t, err, contracts.ErrSessionRequired)

	session, err := app.Accounts.Signup(ctx, "alice", "alice@example.test", "secret-pw")
	require.NoError(t, err)
	require.Positive(t, session.UserID)

	current, err := app.Session()
	require.NoError(t, err)
	require.Equal(t, session.AuthUID, current.AuthUID)

	wavPath, pngPath := writeFixtures(t)
	audioOpts := app.CaptureDefaults(models.CaptureKindAudio)
	audioOpts.Source = wavPath
	audio, err := app.Capture.Capture(ctx, models.CaptureKindAudio, audioOpts)
	require.NoError(t, err)
	faceOpts := app.CaptureDefaults(models.CaptureKindImage)
	faceOpts.Source = pngPath
	face1, err := app.Capture.Capture(ctx, models.CaptureKindImage, faceOpts)
	require.NoError(t, err)
	face2, err := app.Capture.Capture(ctx, models.CaptureKindImage, faceOpts)
	require.NoError(t, err)

	draft := models.NewAgreementDraft(session.UserID, models.AgreementLoan, time.Now())
	result, err := app.Agreements.Submit(ctx, &draft, &audio, &face1, &face2)
	require.NoError(t, err)
	require.True(t, result.Complete())

	home, err := app.Feed.Home(ctx, current)
	require.NoError(t, err)
	require.Equal(t, "alice", home.Greeting)
	require.Len(t, home.Entries, 1)
	require.Equal(t, result.Record.ID, home.Entries[0].Record.ID)
	require.False(t, home.Entries[0].Incomplete())

	require.NoError(t, app.Close())
}

func TestAppProfileEditUploadsAvatar(t *testing.T) {
	srv := startDevAPI(t)
	cfg := testConfig(t, srv)
	app := buildApp(t, cfg, srv)
	defer func() { _ = app.Close() }()
	ctx := context.Background()

	session, err := app.Accounts.Signup(ctx, "bob", "bob@example.test", "secret-pw")
	require.NoError(t, err)

	_, pngPath := writeFixtures(t)
	outcome, saved, err := app.Profiles.Save(ctx, session, models.UserProfile{DisplayName: "Bob B", AvatarHandle: "file://" + pngPath})
	require.NoError(t, err)
	require.Equal(t, profileusecase.NavigateBack, outcome)
	require.True(t, strings.HasPrefix(saved.AvatarHandle, "blob://"), saved.AvatarHandle)

	loaded, err := app.Profiles.Load(ctx, session)
	require.NoError(t, err)
	require.Equal(t, "Bob B", loaded.DisplayName)
	require.Equal(t, saved.AvatarHandle, loaded.AvatarHandle)
}

func TestAppSessionSurvivesRestartSealed(t *testing.T) {
	srv := startDevAPI(t)
	cfg := testConfig(t, srv)
	app := buildApp(t, cfg, srv)

	session, err := app.Accounts.Signup(context.Background(), "carol", "carol@example.test", "secret-pw")
	require.NoError(t, err)
	require.NoError(t, app.Close())

	raw, err := os.ReadFile(cfg.SessionPath())
	require.NoError(t, err)
	require.NotContains(t, string(raw), session.IDToken)
	_, err = os.Stat(filepath.Join(cfg.Storage.DataDir, storageKeyFile))
	require.NoError(t, err)

	reopened := buildApp(t, cfg, srv)
	defer func() { _ = reopened.Close() }()
	restored, err := reopened.Session()
	require.NoError(t, err)
	require.Equal(t, session.UserID, restored.UserID)

	require.NoError(t, reopened.Accounts.Logout())
	_, err = reopened.Session()
	require.ErrorIs(t, err, contracts.ErrSessionRequired)
}

func TestAppSessionFollowsStoredSession(t *testing.T) {
	srv := startDevAPI(t)
	cfg := testConfig(t, srv)
	app := buildApp(t, cfg, srv)
	defer func() { _ = app.Close() }()

	session, err := app.Accounts.Signup(context.Background(), "dan", "dan@example.test", "secret-pw")
	require.NoError(t, err)
	require.Equal(t, session.IDToken, app.session.token())

	require.NoError(t, os.Remove(cfg.SessionPath()))
	_, err = app.Session()
	require.ErrorIs(t, err, contracts.ErrSessionRequired)
	require.Empty(t, app.session.token())
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Capture.Backend = "camera2"
	_, err := Build(context.Background(), cfg, Options{Stderr: io.Discard})
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}
