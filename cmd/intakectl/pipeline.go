package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/adapters/llm"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/adapters/templates"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/application/services"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/validation"
)

// readDictation takes the dictation from args, --file, or stdin when the
// only argument is "-"
func readDictation(cmd *cobra.Command, args []string) (string, error) {
	file, _ := cmd.Flags().GetString("file")
	switch {
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		return string(data), nil
	case len(args) == 1 && args[0] == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", err
		}
		return string(data), nil
	case len(args) > 0:
		return strings.Join(args, " "), nil
	}
	return "", fmt.Errorf("no dictation given; pass text, --file, or - for stdin")
}

func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("file", "f", "", "read the dictation from a file")
}

func sanitizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sanitize [text|-]",
		Short: "Print the dictation with PHI redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readDictation(cmd, args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), validation.Sanitize(text))
			return nil
		},
	}
	addInputFlags(cmd)
	return cmd
}

func keywordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keywords [text|-]",
		Short: "Print the medical keywords extracted from the sanitized dictation",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readDictation(cmd, args)
			if err != nil {
				return err
			}
			for _, kw := range validation.ExtractKeywords(validation.Sanitize(text)) {
				fmt.Fprintln(cmd.OutOrStdout(), kw)
			}
			return nil
		},
	}
	addInputFlags(cmd)
	return cmd
}

// templateSource resolves --templates, falling back to VALIDATION_TEMPLATES_FILE
func templateSource(cmd *cobra.Command, fallback string) (*templates.FileRepository, error) {
	path, _ := cmd.Flags().GetString("templates")
	if path == "" {
		path = fallback
	}
	if path == "" {
		return nil, fmt.Errorf("no template file; pass --templates or set VALIDATION_TEMPLATES_FILE")
	}
	return templates.NewFileRepository(path)
}

func addTemplateFlags(cmd *cobra.Command) {
	cmd.Flags().String("templates", "", "YAML prompt template file")
	cmd.Flags().Bool("override", false, "build the override validation prompt")
}

func promptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompt [text|-]",
		Short: "Print the prompt that would be sent to the provider chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readDictation(cmd, args)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			repo, err := templateSource(cmd, cfg.Validation.TemplatesFile)
			if err != nil {
				return err
			}
			override, _ := cmd.Flags().GetBool("override")

			svc := services.NewValidationService(nil, repo, nil, nil, nil, cfg.Validation.WordLimit)
			prompt, err := svc.Prompt(cmd.Context(), text, override)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), prompt)
			return nil
		},
	}
	addInputFlags(cmd)
	addTemplateFlags(cmd)
	return cmd
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [text|-]",
		Short: "Run a stateless validation through the configured provider chain",
		Long: "Runs sanitize, keywords, prompt, provider chain and parse without\n" +
			"creating an order or writing attempts. Prints the parsed result as JSON.",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readDictation(cmd, args)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			repo, err := templateSource(cmd, cfg.Validation.TemplatesFile)
			if err != nil {
				return err
			}
			gateway, err := llm.NewGatewayFromConfig(cfg.LLM)
			if err != nil {
				return err
			}
			override, _ := cmd.Flags().GetBool("override")

			svc := services.NewValidationService(gateway, repo, nil, nil, nil, cfg.Validation.WordLimit)
			resp, err := svc.Validate(cmd.Context(), services.Caller{}, services.ValidateRequest{
				DictationText:        text,
				IsOverrideValidation: override,
				Stateless:            true,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp.ValidationResult)
		},
	}
	addInputFlags(cmd)
	addTemplateFlags(cmd)
	return cmd
}
