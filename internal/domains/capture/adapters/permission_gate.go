package adapters

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"verisay/go-client/pkg/models"
)

const (
	PolicyAllow  = "allow"
	PolicyDeny   = "deny"
	PolicyPrompt = "prompt"
)

// Prompter asks the operator a yes/no question.
type Prompter interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// PolicyGate grants camera and microphone access per configured policy. Prompt answers are
// remembered for the lifetime of the gate, like an OS permission dialog.
type PolicyGate struct {
	camera     string
	microphone string
	prompter   Prompter

	mu      sync.Mutex
	granted map[models.CaptureKind]bool
}

func NewPolicyGate(cameraPolicy, microphonePolicy string, prompter Prompter) *PolicyGate {
	return &PolicyGate{
		camera:     normalizePolicy(cameraPolicy),
		microphone: normalizePolicy(microphonePolicy),
		prompter:   prompter,
		granted:    make(map[models.CaptureKind]bool),
	}
}

func (g *PolicyGate) RequestPermission(ctx context.Context, kind models.CaptureKind) (bool, error) {
	policy, capability := g.microphone, "microphone"
	if kind == models.CaptureKindImage {
		policy, capability = g.camera, "camera"
	}
	switch policy {
	case PolicyAllow:
		return true, nil
	case PolicyDeny:
		return false, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if answer, ok := g.granted[kind]; ok {
		return answer, nil
	}
	if g.prompter == nil {
		return false, nil
	}
	answer, err := g.prompter.Confirm(ctx, fmt.Sprintf("Allow VeriSay to use the %s?", capability))
	if err != nil {
		return false, err
	}
	g.granted[kind] = answer
	return answer, nil
}

func normalizePolicy(policy string) string {
	switch strings.ToLower(strings.TrimSpace(policy)) {
	case PolicyAllow:
		return PolicyAllow
	case PolicyDeny:
		return PolicyDeny
	default:
		return PolicyPrompt
	}
}

// LinePrompter reads answers line by line; only "y" or "yes" grants.
type LinePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{in: bufio.NewReader(in), out: out}
}

func (p *LinePrompter) Confirm(ctx context.Context, question string) (bool, error) {
	line, err := p.ReadLine(ctx, question+" [y/N]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// ReadLine prints prompt and returns the next trimmed input line. EOF yields an empty answer.
func (p *LinePrompter) ReadLine(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.out != nil {
		if _, err := io.WriteString(p.out, prompt); err != nil {
			return "", err
		}
	}
	line, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
