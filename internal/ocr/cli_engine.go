package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// cliEngine runs the Tesseract executable, streaming the image through stdin and
// reading the text from stdout. Nothing is written to disk.
type cliEngine struct {
	path           string
	tessdataPrefix string
}

// NewCLIEngine creates an engine backed by the tesseract binary at path
func NewCLIEngine(path, tessdataPrefix string) Engine {
	return &cliEngine{path: path, tessdataPrefix: tessdataPrefix}
}

func (e *cliEngine) Name() string {
	return "tesseract-cli"
}

func (e *cliEngine) Probe(ctx context.Context) (Capabilities, error) {
	bin, err := e.resolve()
	if err != nil {
		return Capabilities{}, err
	}
	e.path = bin

	cmd := e.command(ctx, "--version")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return Capabilities{}, fmt.Errorf("run %s --version: %w", bin, err)
	}
	return parseCapabilities(string(out))
}

// resolve accepts an absolute/relative path to an existing file or a bare name on PATH
func (e *cliEngine) resolve() (string, error) {
	if e.path == "" {
		return "", fmt.Errorf("tesseract path not configured")
	}
	if st, err := os.Stat(e.path); err == nil {
		if st.IsDir() {
			return "", fmt.Errorf("tesseract path %s is a directory", e.path)
		}
		return e.path, nil
	}
	bin, err := exec.LookPath(e.path)
	if err != nil {
		return "", fmt.Errorf("tesseract not found at %s: %w", e.path, err)
	}
	return bin, nil
}

func (e *cliEngine) Recognize(ctx context.Context, image []byte, cfg RecognizeConfig) (string, error) {
	cmd := e.command(ctx, cliArgs(cfg)...)
	cmd.Stdin = bytes.NewReader(image)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("tesseract failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func (e *cliEngine) command(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, e.path, args...)
	if e.tessdataPrefix != "" {
		cmd.Env = append(os.Environ(), "TESSDATA_PREFIX="+e.tessdataPrefix)
	}
	return cmd
}

func cliArgs(cfg RecognizeConfig) []string {
	args := []string{
		"stdin", "stdout",
		"-l", cfg.LanguageTag(),
		"--oem", strconv.Itoa(cfg.EngineMode),
		"--psm", strconv.Itoa(cfg.PageSeg),
	}
	if cfg.Whitelist != "" {
		args = append(args, "-c", "tessedit_char_whitelist="+cfg.Whitelist)
	}
	return args
}
