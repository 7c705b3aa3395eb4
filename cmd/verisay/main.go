package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"verisay/go-client/internal/composition/client"
	"verisay/go-client/internal/config"
	"verisay/go-client/internal/domains/contracts"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

const (
	exitOK              = 0
	exitFailure         = 1
	exitInvalidInput    = 10
	exitNetworkFailed   = 20
	exitSessionRequired = 30
	exitCaptureAborted  = 40
	exitIncomplete      = 50
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// cli carries the streams and global flags shared by every command.
type cli struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	lines  *bufio.Reader

	configPath string
	plain      bool
	jsonOut    bool
}

func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	c := &cli{in: in, out: out, errOut: errOut}
	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	c.reportError(err)
	return exitCode(err)
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "verisay",
		Short:         "Record verbal agreements with voice and face evidence",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to verisay.yaml")
	root.PersistentFlags().BoolVar(&c.plain, "plain", config.PlainOutputFromEnv(), "print progress as plain lines")
	root.PersistentFlags().BoolVar(&c.jsonOut, "json", false, "emit json")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	root.AddCommand(
		newSignupCmd(c),
		newLoginCmd(c),
		newLogoutCmd(c),
		newWhoamiCmd(c),
		newHomeCmd(c),
		newAgreementCmd(c),
		newProfileCmd(c),
		newStorageCmd(c),
		newVersionCmd(c),
	)
	return root
}

func newVersionCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.jsonOut {
				return c.printJSON(map[string]string{"version": version, "commit": commit, "build_date": buildDate})
			}
			_, err := fmt.Fprintf(c.out, "verisay version=%s commit=%s build_date=%s\n", version, commit, buildDate)
			return err
		},
	}
}

// withApp builds the client for one command and closes it afterwards.
func (c *cli) withApp(ctx context.Context, fn func(*client.App) error) (err error) {
	cfg, err := config.LoadFromPath(c.configPath)
	if err != nil {
		return err
	}
	app, err := client.Build(ctx, cfg, client.Options{Stdin: c.in, Stderr: c.errOut})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(app)
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

// readLine prompts on errOut and reads one line from in.
func (c *cli) readLine(prompt string) (string, error) {
	_, _ = fmt.Fprint(c.errOut, prompt)
	if c.lines == nil {
		c.lines = bufio.NewReader(c.in)
	}
	line, err := c.lines.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readSecret reads a password without echo when in is a terminal.
func (c *cli) readSecret(prompt string) (string, error) {
	f, ok := c.in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return c.readLine(prompt)
	}
	_, _ = fmt.Fprint(c.errOut, prompt)
	raw, err := term.ReadPassword(int(f.Fd()))
	_, _ = fmt.Fprintln(c.errOut)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (c *cli) reportError(err error) {
	var flowErr *contracts.FlowError
	if errors.As(err, &flowErr) {
		title, message := contracts.Advisory(err)
		_, _ = fmt.Fprintf(c.errOut, "%s: %s\n", title, message)
		if flowErr.Err != nil {
			_, _ = fmt.Fprintf(c.errOut, "  %v\n", flowErr.Err)
		}
		return
	}
	_, _ = fmt.Fprintf(c.errOut, "verisay: %v\n", err)
}

type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var usage usageError
	if errors.As(err, &usage) || errors.Is(err, config.ErrInvalidConfig) {
		return exitInvalidInput
	}
	var flowErr *contracts.FlowError
	if !errors.As(err, &flowErr) {
		return exitFailure
	}
	switch flowErr.Kind {
	case contracts.KindIncompleteSubmission:
		return exitInvalidInput
	case contracts.KindSessionRequired:
		return exitSessionRequired
	case contracts.KindPermissionDenied, contracts.KindCaptureCancelled:
		return exitCaptureAborted
	case contracts.KindAttachmentUploadFailed:
		return exitIncomplete
	case contracts.KindMetadataCreateFailed, contracts.KindSignupFailed, contracts.KindLoginFailed, contracts.KindProfileSaveFailed:
		return exitNetworkFailed
	default:
		return exitFailure
	}
}
