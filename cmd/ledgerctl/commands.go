package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/yungbote/recycleright-backend/internal/leaderboard"
	"github.com/yungbote/recycleright-backend/internal/platform/shutdown"
	"github.com/yungbote/recycleright-backend/internal/realtime"
	"github.com/yungbote/recycleright-backend/internal/realtime/bus"
)

type rootOptions struct {
	jsonOut bool
	logMode string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Inspect and correct the points ledger",
		Long: `ledgerctl talks to the same progress store as the API server.

Store selection follows the server's environment (STORE_DRIVER, POSTGRES_DSN,
SQLITE_PATH). Adjustments are pushed to live clients when REDIS_ADDR is set.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print JSON instead of tables")
	root.PersistentFlags().StringVar(&opts.logMode, "log-mode", logModeFromEnv(), "logger mode (development|production)")

	root.AddCommand(
		newVerifyCmd(opts),
		newAdjustCmd(opts),
		newLeaderboardCmd(opts),
		newRankCmd(opts),
		newWatchCmd(opts),
	)
	return root
}

// withEnv opens the store for one command run and closes it afterwards.
func withEnv(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, e *env) error) error {
	ctx, stop := shutdown.NotifyContext(cmd.Context())
	defer stop()
	e, err := openEnv(ctx, opts.logMode)
	if err != nil {
		return err
	}
	defer e.close()
	return fn(ctx, e)
}

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <user-id>",
		Short: "Check a user's points against their event history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(ctx context.Context, e *env) error {
				rep, err := e.ledger.Verify(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if opts.jsonOut {
					if err := writeJSON(out, rep); err != nil {
						return err
					}
				} else {
					fmt.Fprint(out, renderVerify(rep))
				}
				if !rep.OK {
					return fmt.Errorf("ledger inconsistent for %s", rep.UserID)
				}
				return nil
			})
		},
	}
}

func newAdjustCmd(opts *rootOptions) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "adjust <user-id> <delta>",
		Short: "Apply a manual points correction",
		Long: `Apply a signed points correction. Points never drop below zero, so the
applied delta can be smaller than requested.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("delta must be an integer: %w", err)
			}
			return withEnv(cmd, opts, func(ctx context.Context, e *env) error {
				res, err := e.ledger.Adjust(ctx, args[0], delta, reason)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if opts.jsonOut {
					return writeJSON(out, res)
				}
				fmt.Fprintf(out, "applied %+d to %s: %d points, level %d (%s)\n",
					res.Applied, args[0], res.NewTotal, res.NewLevel, res.LevelName)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded on the adjustment event (required)")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newLeaderboardCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the top users by points",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(ctx context.Context, e *env) error {
				entries, err := e.board.Top(ctx, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if opts.jsonOut {
					return writeJSON(out, entries)
				}
				fmt.Fprint(out, renderLeaderboard(entries))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", leaderboard.DefaultLimit, "number of entries")
	return cmd
}

func newRankCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rank <user-id>",
		Short: "Show a user's leaderboard position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(ctx context.Context, e *env) error {
				info, err := e.board.Rank(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if opts.jsonOut {
					return writeJSON(out, info)
				}
				fmt.Fprintf(out, "%s is #%d of %d with %d points (level %d), %d behind the next rank\n",
					info.UserID, info.Rank, info.TotalUsers, info.Points, info.Level, info.PointsToNextRank)
				return nil
			})
		},
	}
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream ledger notifications from the realtime bus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(ctx context.Context, e *env) error {
				if _, ok := e.bus.(*bus.RedisBus); !ok {
					return fmt.Errorf("watch needs a reachable redis at REDIS_ADDR")
				}
				out := cmd.OutOrStdout()
				err := e.bus.StartForwarder(ctx, func(m realtime.Message) {
					if opts.jsonOut {
						_ = writeJSON(out, m)
						return
					}
					fmt.Fprintln(out, renderMessage(m))
				})
				if err != nil {
					return err
				}
				<-ctx.Done()
				return nil
			})
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
