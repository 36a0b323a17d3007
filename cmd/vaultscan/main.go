// Command vaultscan runs the security posture pipeline over screenshots from the
// command line.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/artifact"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/config"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/container"
	apperrors "github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/errors"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/logger"
)

var (
	version = "1.0.0"
	appName = "vaultscan"

	colorRed    = color.New(color.FgRed, color.Bold)
	colorGreen  = color.New(color.FgGreen, color.Bold)
	colorYellow = color.New(color.FgYellow)
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the command line and maps the outcome to an exit code:
// 0 success, 1 invalid input or configuration, 2 OCR engine unavailable.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		colorRed.Fprintf(stderr, "Error: %v\n", err)
		if apperrors.IsType(err, apperrors.ErrorTypeEngineUnavailable) {
			colorYellow.Fprintln(stderr, "Set VAULTGUARD_TESSERACT_PATH to the tesseract executable or install Tesseract OCR.")
		}
		return apperrors.ExitCode(err)
	}
	return apperrors.ExitOK
}

type cli struct {
	stdout   io.Writer
	stderr   io.Writer
	logLevel string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   appName,
		Short: "Extract and score Windows security settings from screenshots",
		Long: `vaultscan reads screenshots of security settings panels, extracts their text
with Tesseract OCR, classifies the tracked settings and writes per-image reports.

Examples:
  vaultscan run panel.png
  vaultscan run ./screenshots
  vaultscan run --demo ./out
  vaultscan run --improve ./screenshots
  vaultscan classify panel_extracted.txt`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.SetOutput(c.stderr)
			if c.logLevel != "" {
				logger.SetLevel(c.logLevel)
			}
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level (debug, info, warn, error); defaults to LOG_LEVEL")

	root.AddCommand(
		c.newRunCmd(),
		c.newExtractCmd(),
		c.newClassifyCmd(),
		c.newRulesCmd(),
	)
	return root
}

// loadConfig reads the environment; configuration problems are invalid input
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, apperrors.NewValidationError("invalid configuration", err)
	}
	return cfg, nil
}

// build wires the pipeline. It probes the OCR engine and fails with
// engine_unavailable before any image is touched.
func build(ctx context.Context) (*container.Container, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return container.NewContainer(ctx, cfg)
}

// defaultImages is the folder used when no target is given
func defaultImages() string {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return "test_images"
	}
	return filepath.Join(cfg.OutputRoot, "test_images")
}

type targetKind int

const (
	targetFile targetKind = iota
	targetFolder
)

// resolveTarget reports whether path is a file or a folder
func resolveTarget(path string) (targetKind, error) {
	st, err := os.Stat(path)
	if err != nil {
		return 0, apperrors.NewInvalidPathError(path, err)
	}
	if st.IsDir() {
		return targetFolder, nil
	}
	return targetFile, nil
}

func (c *cli) printJSON(v interface{}) error {
	data, err := artifact.JSON(v)
	if err != nil {
		return apperrors.NewInternalError("encode output", err)
	}
	_, err = c.stdout.Write(data)
	return err
}

func (c *cli) done(format string, a ...interface{}) {
	colorGreen.Fprintf(c.stderr, "%s\n", fmt.Sprintf(format, a...))
}
