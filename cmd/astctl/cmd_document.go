package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"astapp/internal/config"
	"astapp/internal/formdsl"
	"astapp/internal/model"
	"astapp/internal/service"
)

var fmtWrite bool

var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Print a form document as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := readForm(args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	},
}

var fmtCmd = &cobra.Command{
	Use:   "fmt <file>",
	Short: "Rewrite a form document in canonical layout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := readForm(args[0])
		if err != nil {
			return err
		}
		out := formdsl.Serialize(cfg)
		if fmtWrite {
			return os.WriteFile(args[0], []byte(out), 0o644)
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), out)
		return err
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a form document against the save rules",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := readForm(args[0])
		if err != nil {
			return err
		}
		appCfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := service.ValidateForm(cfg, appCfg.Scoring); err != nil {
			var verr *service.FormValidationError
			if errors.As(err, &verr) {
				for _, p := range verr.Problems {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], p)
				}
			}
			return fmt.Errorf("%s is not valid", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d questions)\n", args[0], len(cfg.Questions))
		return nil
	},
}

func init() {
	fmtCmd.Flags().BoolVarP(&fmtWrite, "write", "w", false, "write result to the file instead of stdout")
}

func readForm(path string) (*model.FormConfig, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	text := string(data)
	return formdsl.Parse(text), text, nil
}
