package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var provisionedGroupsCmd = &cobra.Command{
	Use:   "provisioned-groups <env>",
	Short: "List provisioned JIT groups in an environment",
	Long: `Lists the JIT groups in env that currently have a backing directory
group, along with their description and stamped checksum.`,
	Args: cobra.ExactArgs(1),
	RunE: runProvisionedGroups,
}

func init() {
	rootCmd.AddCommand(provisionedGroupsCmd)
}

func runProvisionedGroups(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	broker, closeFn, err := bootstrap(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	groups, err := broker.Provisioner.ProvisionedGroups(ctx, args[0])
	if err != nil {
		return fmt.Errorf("list provisioned groups in %s: %w", args[0], err)
	}

	if len(groups) == 0 {
		fmt.Printf("no provisioned groups in %s\n", args[0])
		return nil
	}
	for _, g := range groups {
		fmt.Printf("%s\t%s\t%s\n", g.Key, g.Email, g.Description)
	}
	return nil
}
