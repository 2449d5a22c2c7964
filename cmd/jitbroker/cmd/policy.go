package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jitgroups/broker/internal/adapter/outbound/cel"
	"github.com/jitgroups/broker/internal/policyyaml"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect and validate policy documents",
}

var policyValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Parse and validate a policy document",
	Long: `Parses the YAML policy document at path (or the configured
policy.source_path when no path is given) into the in-memory policy tree,
reporting every environment, system, and group found.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPolicyValidate,
}

func init() {
	policyCmd.AddCommand(policyValidateCmd)
	rootCmd.AddCommand(policyCmd)
}

func runPolicyValidate(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		path = cfg.Policy.SourcePath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read policy document: %w", err)
	}

	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return fmt.Errorf("construct predicate evaluator: %w", err)
	}

	doc, err := policyyaml.Load(data, evaluator)
	if err != nil {
		return fmt.Errorf("policy document is invalid: %w", err)
	}

	fmt.Printf("%s: valid\n", path)
	for _, env := range doc.Environments {
		groupCount := 0
		for _, sys := range env.Systems {
			groupCount += len(sys.Groups)
		}
		fmt.Printf("  environment %q: %d system(s), %d group(s)\n", env.Name, len(env.Systems), groupCount)
	}
	return nil
}
