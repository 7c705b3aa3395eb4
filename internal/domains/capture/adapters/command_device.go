package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	capturepolicy "verisay/go-client/internal/domains/capture/policy"
	"verisay/go-client/internal/domains/contracts"
	"verisay/go-client/pkg/models"
)

// exitInterrupted is what recorders exit with after SIGINT (128+2).
const exitInterrupted = 130

// CommandDevice runs an external recorder or camera tool per capture.
type CommandDevice struct {
	audioArgv   []string
	imageArgv   []string
	frontDevice string
	rearDevice  string
}

func NewCommandDevice(audioArgv, imageArgv []string, frontDevice, rearDevice string) *CommandDevice {
	return &CommandDevice{
		audioArgv:   append([]string(nil), audioArgv...),
		imageArgv:   append([]string(nil), imageArgv...),
		frontDevice: frontDevice,
		rearDevice:  rearDevice,
	}
}

func (d *CommandDevice) Capture(ctx context.Context, kind models.CaptureKind, opts models.CaptureOptions, outputPath string) error {
	template := d.audioArgv
	if kind == models.CaptureKindImage {
		template = d.imageArgv
	}
	if len(template) == 0 {
		return fmt.Errorf("no %s capture command configured", kind)
	}
	argv := ExpandArgv(template, d.placeholders(opts, outputPath))

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return contracts.ErrCaptureCancelled
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == exitInterrupted {
		return contracts.ErrCaptureCancelled
	}
	msg := strings.TrimSpace(stderr.String())
	if msg == "" {
		return fmt.Errorf("%s capture command: %w", kind, err)
	}
	return fmt.Errorf("%s capture command: %w: %s", kind, err, msg)
}

func (d *CommandDevice) placeholders(opts models.CaptureOptions, outputPath string) map[string]string {
	device := d.frontDevice
	if opts.Camera == models.CameraRear {
		device = d.rearDevice
	}
	percent, _ := capturepolicy.QualityPercent(opts.Quality)
	return map[string]string{
		"{output}":   outputPath,
		"{device}":   device,
		"{quality}":  strconv.Itoa(percent),
		"{rate}":     strconv.Itoa(capturepolicy.SampleRate(opts.AudioPreset)),
		"{duration}": strconv.Itoa(int(opts.Duration.Seconds())),
	}
}

// ExpandArgv substitutes placeholders inside each argument; arguments are never re-split.
func ExpandArgv(template []string, values map[string]string) []string {
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, k, v)
	}
	replacer := strings.NewReplacer(pairs...)
	out := make([]string, len(template))
	for i, arg := range template {
		out[i] = replacer.Replace(arg)
	}
	return out
}
