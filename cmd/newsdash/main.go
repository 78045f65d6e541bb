package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"newsdash/internal/app"
	"newsdash/internal/config"
	"newsdash/internal/infrastructure/storage"
	"newsdash/internal/logging"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "newsdash",
		Short:         "Financial news feed ingestion and annotation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(serveCmd(), fetchCmd(), statusCmd(), cleanupCmd(), archiveCmd(), retagCmd())
	return root
}

func newApp() (*app.Application, error) {
	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)
	return app.New(cfg, logger)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the periodic ingestion loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApp()
			if err != nil {
				return err
			}
			defer application.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return application.Run(ctx)
		},
	}
}

func fetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Run exactly one ingestion cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApp()
			if err != nil {
				return err
			}
			defer application.Close()

			ctx := cmd.Context()
			if err := application.Init(ctx); err != nil {
				return err
			}

			summary, err := application.FetchOnce(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("run %s: %d items added\n", summary.RunID, summary.ItemsAdded)
			if summary.LastError != "" {
				fmt.Printf("last error: %s\n", summary.LastError)
			}
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-source fetch health",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApp()
			if err != nil {
				return err
			}
			defer application.Close()

			ctx := cmd.Context()
			if err := application.Init(ctx); err != nil {
				return err
			}

			statuses, err := application.SourceHealth(ctx)
			if err != nil {
				return err
			}
			if len(statuses) == 0 {
				fmt.Println("no fetches recorded yet")
				return nil
			}

			for _, st := range statuses {
				line := fmt.Sprintf("%-24s seen=%d added=%d", st.SourceID, st.ItemsSeen, st.ItemsAdded)
				if st.LastHTTPStatus != 0 {
					line += fmt.Sprintf(" http=%d", st.LastHTTPStatus)
				}
				if st.LastOK != nil {
					line += " last_ok=" + st.LastOK.Format("2006-01-02 15:04")
				}
				if st.LastError != "" {
					line += " error=" + st.LastError
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}

func cleanupCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete items older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApp()
			if err != nil {
				return err
			}
			defer application.Close()

			ctx := cmd.Context()
			if err := application.Init(ctx); err != nil {
				return err
			}

			stats, err := application.Cleanup(ctx, days)
			if err != nil {
				return err
			}

			fmt.Printf("deleted %d items, %d tags, %d signals\n",
				stats.ItemsDeleted, stats.TagsDeleted, stats.SignalsDeleted)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "retention period override in days")
	return cmd
}

func archiveCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Export items older than the given age to a compressed batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApp()
			if err != nil {
				return err
			}
			defer application.Close()

			ctx := cmd.Context()
			if err := application.Init(ctx); err != nil {
				return err
			}

			path, count, err := application.Archive(ctx, days)
			if errors.Is(err, storage.ErrNothingToArchive) {
				return fmt.Errorf("no items older than %d days; nothing archived", days)
			}
			if err != nil {
				return err
			}

			fmt.Printf("archived %d items to %s\n", count, path)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 90, "archive items older than this many days")
	return cmd
}

func retagCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retag",
		Short: "Re-apply the current rule tables to all stored items",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApp()
			if err != nil {
				return err
			}
			defer application.Close()

			ctx := cmd.Context()
			if err := application.Init(ctx); err != nil {
				return err
			}

			count, err := application.Retag(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("retagged %d items\n", count)
			return nil
		},
	}
}
