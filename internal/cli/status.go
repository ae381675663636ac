package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/boardcheck/internal/core/config"
	"github.com/vietddude/boardcheck/internal/infra/storage/postgres"
)

var statusBoard string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show requirement statuses from the database",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusBoard, "board", "", "filter by board id")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
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

	query := "SELECT user_id, board_id, kind, state, last_value, updated_at FROM requirement_statuses"
	queryArgs := []any{}
	if statusBoard != "" {
		query += " WHERE board_id = $1"
		queryArgs = append(queryArgs, statusBoard)
	}
	query += " ORDER BY board_id, user_id, kind"

	rows, err := db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		slog.Error("Failed to query statuses", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = rows.Close()
	}()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "USER\tBOARD\tKIND\tSTATE\tVALUE\tUPDATED")

	for rows.Next() {
		var userID, lastValue int64
		var boardID, kind, state string
		var updatedAt time.Time
		if err := rows.Scan(&userID, &boardID, &kind, &state, &lastValue, &updatedAt); err != nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n", userID, boardID, kind, state, lastValue, updatedAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}
