package main

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/classifier"
	apperrors "github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/errors"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/repository"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/risk"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/pkg/models"
)

func (c *cli) newRunCmd() *cobra.Command {
	var demoRun, improveRun bool

	cmd := &cobra.Command{
		Use:   "run [image|folder]",
		Short: "Analyze one screenshot or every screenshot in a folder",
		Long: `Analyze one screenshot or every supported image in a folder and print the summary.

With --demo the argument is the output folder for a synthetic demo image that is
then analyzed end to end. With --improve the argument is a folder for the
keyword-assisted extraction report.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if demoRun && improveRun {
				return apperrors.NewValidationError("--demo and --improve are exclusive", nil)
			}
			target := defaultImages()
			if len(args) == 1 {
				target = args[0]
			}

			if demoRun {
				return c.runDemo(cmd, target)
			}

			kind, err := resolveTarget(target)
			if err != nil {
				return err
			}
			if improveRun && kind != targetFolder {
				return apperrors.NewInvalidPathError(target, repository.ErrNotADirectory)
			}

			ct, err := build(cmd.Context())
			if err != nil {
				return err
			}
			defer ct.Close()
			svc := ct.Service()

			switch {
			case improveRun:
				report, err := svc.Improve(cmd.Context(), target)
				if err != nil {
					return err
				}
				c.done("Improvement report: %s (%d/%d images ok)", report.Path, report.OKImages, report.TotalImages)
				return c.printJSON(report)
			case kind == targetFolder:
				report, err := svc.AnalyzeFolder(cmd.Context(), target)
				if err != nil {
					return err
				}
				c.done("Analyzed %d images, summary: %s", report.Count, report.Summary)
				return c.printJSON(report)
			default:
				summary, err := svc.AnalyzeImage(cmd.Context(), target)
				if err != nil {
					return err
				}
				c.done("Security score: %.1f%%", summary.Score)
				return c.printJSON(summary)
			}
		},
	}
	cmd.Flags().BoolVar(&demoRun, "demo", false, "render a demo screenshot into the given folder and analyze it")
	cmd.Flags().BoolVar(&improveRun, "improve", false, "write the keyword-assisted extraction report for a folder")
	return cmd
}

func (c *cli) runDemo(cmd *cobra.Command, outFolder string) error {
	ct, err := build(cmd.Context())
	if err != nil {
		return err
	}
	defer ct.Close()

	res, err := ct.Service().Demo(cmd.Context(), outFolder)
	if err != nil {
		return err
	}
	c.done("Demo image created: %s (CER %.4f)", res.ImagePath, res.Accuracy.CER)
	return c.printJSON(res)
}

func (c *cli) newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <image|folder>",
		Short: "Run OCR only and write the extracted text artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := args[0]
			kind, err := resolveTarget(target)
			if err != nil {
				return err
			}
			ct, err := build(cmd.Context())
			if err != nil {
				return err
			}
			defer ct.Close()

			if kind == targetFolder {
				results, err := ct.Service().ExtractFolder(cmd.Context(), target)
				if err != nil {
					return err
				}
				c.done("Extracted text from %d images", len(results))
				return c.printJSON(results)
			}
			summary, err := ct.Service().ExtractImage(cmd.Context(), target)
			if err != nil {
				return err
			}
			c.done("Extracted %d characters: %s", summary.TextLen, summary.TextFile)
			return c.printJSON(summary)
		},
	}
}

// activeRules loads RULES_FILE when set, else the built-in table
func activeRules() (*classifier.RuleSet, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.RulesFile == "" {
		return classifier.MustDefault(), nil
	}
	return classifier.LoadRules(cfg.RulesFile)
}

func (c *cli) newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <text-file>",
		Short: "Classify settings in an already extracted text file",
		Long: `Classify settings in an already extracted text file. No OCR engine is needed.
Empty files print {"error": "empty_text"}.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return apperrors.NewInvalidPathError(args[0], err)
			}
			rules, err := activeRules()
			if err != nil {
				return err
			}

			settings, err := classifier.New(rules).Classify(string(data))
			if apperrors.IsType(err, apperrors.ErrorTypeEmptyText) {
				return c.printJSON(models.ErrorResponse{Error: models.EmptyTextMarker})
			}
			if err != nil {
				return err
			}
			assessment := risk.NewDeriver(risk.PolicyFor(rules)).Derive(settings)
			return c.printJSON(assessment)
		},
	}
}

func (c *cli) newRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Print the active rule table as YAML (usable as RULES_FILE)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := activeRules()
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(c.stdout)
			enc.SetIndent(2)
			if err := enc.Encode(rules); err != nil {
				return apperrors.NewInternalError("encode rules", err)
			}
			return enc.Close()
		},
	}
}
