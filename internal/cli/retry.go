package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vietddude/boardcheck/internal/core/config"
	"github.com/vietddude/boardcheck/internal/core/domain"
	"github.com/vietddude/boardcheck/internal/infra/storage/postgres"
)

var retryCmd = &cobra.Command{
	Use:   "retry [user_id] [board_id] [kind]",
	Short: "Reset an errored requirement status so the next sweep re-checks it",
	Args:  cobra.ExactArgs(3),
	Run:   runRetry,
}

func init() {
	rootCmd.AddCommand(retryCmd)
}

func runRetry(cmd *cobra.Command, args []string) {
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Printf("Invalid user id: %v\n", err)
		os.Exit(1)
	}
	boardID := args[1]
	kind := domain.RequirementKind(args[2])

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	// Only error rows are touched. The running engine resolves anything else
	// on its own.
	query := "UPDATE requirement_statuses SET state = 'pending', updated_at = NOW() WHERE user_id = $1 AND board_id = $2 AND kind = $3 AND state = 'error'"
	res, err := db.ExecContext(ctx, query, userID, boardID, string(kind))
	if err != nil {
		slog.Error("Failed to reset status", "error", err)
		os.Exit(1)
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		fmt.Printf("No errored status found for user %d on %s/%s\n", userID, boardID, kind)
		os.Exit(1)
	}
	fmt.Printf("Reset status for user %d on %s/%s, the next rescan will re-check it\n", userID, boardID, kind)
}
