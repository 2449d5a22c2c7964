package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jitgroups/broker/internal/domain/identity"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <env> <system> <group>",
	Short: "Reconcile a JIT group's IAM bindings against its declared privileges",
	Long: `Re-derives a JIT group's resource-IAM bindings from its policy-declared
privileges and replaces them if the stamped checksum has drifted (§4.7).
Membership is untouched; this is the administrative drift-correction path.
The command performs no RECONCILE permission check.`,
	Args: cobra.ExactArgs(3),
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
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

	groupID := identity.JitGroupId{Environment: args[0], System: args[1], Name: args[2]}
	if err := broker.Reconcile(ctx, groupID); err != nil {
		return fmt.Errorf("reconcile %s: %w", groupID.String(), err)
	}

	fmt.Printf("reconciled %s\n", groupID.String())
	return nil
}
