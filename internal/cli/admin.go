package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// NewAdminCmd groups operator actions that run directly against the store.
func NewAdminCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Operator actions: live vote, mileage, redemption gate",
	}
	cmd.AddCommand(
		newVoteCmd(configPath),
		adminAction(configPath, "multiplier STUDENT_ID MULTIPLIER", "Apply the one-time multiplier", 2,
			func(ctx context.Context, rt *runtime, args []string) (any, error) {
				m, err := strconv.ParseFloat(args[1], 64)
				if err != nil {
					return nil, fmt.Errorf("multiplier: %w", err)
				}
				return rt.services.Accounts.SetMultiplier(ctx, args[0], m)
			}),
		adminAction(configPath, "spend STUDENT_ID AMOUNT [MEMO]", "Spend display mileage for a student", 2,
			func(ctx context.Context, rt *runtime, args []string) (any, error) {
				amount, err := strconv.ParseInt(args[1], 10, 64)
				if err != nil {
					return nil, fmt.Errorf("amount: %w", err)
				}
				memo := ""
				if len(args) > 2 {
					memo = args[2]
				}
				return rt.services.Mileage.SpendByStudent(ctx, args[0], amount, memo)
			}),
		adminAction(configPath, "whitelist STUDENT_ID", "Register a student for manual visits", 1,
			func(ctx context.Context, rt *runtime, args []string) (any, error) {
				return rt.services.Accounts.RegisterWhitelist(ctx, args[0])
			}),
		adminAction(configPath, "manual-visit STUDENT_ID BOOTH_IDX", "Credit a booth visit without NFC", 2,
			func(ctx context.Context, rt *runtime, args []string) (any, error) {
				idx, err := strconv.Atoi(args[1])
				if err != nil {
					return nil, fmt.Errorf("booth index: %w", err)
				}
				return rt.services.Visits.ManualVisit(ctx, args[0], idx)
			}),
		adminAction(configPath, "redemption on|off", "Open or close visit redemption", 1,
			func(ctx context.Context, rt *runtime, args []string) (any, error) {
				var enabled bool
				switch args[0] {
				case "on":
					enabled = true
				case "off":
				default:
					return nil, fmt.Errorf("expected on or off, got %q", args[0])
				}
				if err := rt.services.Visits.SetRedemptionEnabled(ctx, enabled); err != nil {
					return nil, err
				}
				return map[string]bool{"enabled": enabled}, nil
			}),
		adminAction(configPath, "snapshot", "Freeze the class ranking", 0,
			func(ctx context.Context, rt *runtime, args []string) (any, error) {
				return rt.services.Classes.Snapshot(ctx)
			}),
		adminAction(configPath, "grant-admin UID", "Mark a user as administrator", 1,
			func(ctx context.Context, rt *runtime, args []string) (any, error) {
				if err := rt.services.Accounts.GrantAdmin(ctx, args[0]); err != nil {
					return nil, err
				}
				return map[string]string{"admin": args[0]}, nil
			}),
		newExportCmd(configPath),
	)
	return cmd
}

func newVoteCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{Use: "vote", Short: "Drive the live vote"}
	cmd.AddCommand(
		adminAction(configPath, "start ROUND CANDIDATE_A CANDIDATE_B", "Start a round", 3,
			func(ctx context.Context, rt *runtime, args []string) (any, error) {
				round, err := strconv.Atoi(args[0])
				if err != nil {
					return nil, fmt.Errorf("round: %w", err)
				}
				return rt.services.Votes.Start(ctx, round, args[1], args[2])
			}),
		adminAction(configPath, "finalize", "Close the running round and record the winner", 0,
			func(ctx context.Context, rt *runtime, args []string) (any, error) {
				return rt.services.Votes.Finalize(ctx)
			}),
		adminAction(configPath, "final", "Start the final between the winners of rounds 1 and 2", 0,
			func(ctx context.Context, rt *runtime, args []string) (any, error) {
				return rt.services.Votes.StartFinalAuto(ctx)
			}),
	)
	return cmd
}

func newExportCmd(configPath *string) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export-classes",
		Short: "Write the class ranking workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := rt.services.Classes.Export(cmd.Context(), f); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "classes.xlsx", "output path")
	return cmd
}

type actionFunc func(ctx context.Context, rt *runtime, args []string) (any, error)

// adminAction builds a subcommand that prints its result as JSON.
func adminAction(configPath *string, use, short string, minArgs int, fn actionFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(minArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()
			result, err := fn(cmd.Context(), rt, args)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
}
