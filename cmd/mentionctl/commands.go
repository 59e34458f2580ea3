package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/socialguard/mentions-monitor/internal/config"
	"github.com/socialguard/mentions-monitor/internal/language"
	"github.com/socialguard/mentions-monitor/internal/models"
	"github.com/socialguard/mentions-monitor/internal/monitoring"
	"github.com/socialguard/mentions-monitor/internal/search"
	"github.com/socialguard/mentions-monitor/internal/sources"
	"github.com/socialguard/mentions-monitor/internal/storage"
)

var (
	okLabel   = color.New(color.FgGreen).Sprint
	warnLabel = color.New(color.FgYellow).Sprint
	failLabel = color.New(color.FgRed).Sprint
)

func sourcesCmd() *cobra.Command {
	var keywords []string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Check connectivity of every source",
		Long: `Runs one search against every registered source with the configured
credentials. Sources without credentials are reported as disabled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			registry := sources.NewRegistryFromConfig(cfg)
			for _, name := range registry.Names() {
				src, _ := registry.Get(name)
				fmt.Printf("%-15s ", name)

				if !src.IsEnabled() {
					fmt.Println(warnLabel("DISABLED"), "(missing credentials)")
					continue
				}

				start := time.Now()
				mentions, err := src.Search(ctx, keywords, models.Filters{})
				if err != nil {
					fmt.Println(failLabel("ERROR"), err)
					continue
				}

				fmt.Printf("%s %d mentions in %v\n", okLabel("OK"), len(mentions), time.Since(start).Round(time.Millisecond))
				if len(mentions) > 0 {
					fmt.Printf("                sample: %q\n", preview(mentions[0].Content))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&keywords, "keyword", "k", []string{"kubernetes"}, "keywords to search for")
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "overall timeout")
	return cmd
}

func scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan <case-id>",
		Short: "Run one monitoring tick for a stored case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caseID := args[0]

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := storage.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer store.Close()

			record, err := store.GetCase(ctx, caseID)
			if err != nil {
				return fmt.Errorf("load case %s: %w", caseID, err)
			}
			job, err := record.ToJob(cfg.DefaultInterval)
			if err != nil {
				return err
			}

			engine := monitoring.NewEngine(cfg, sources.NewRegistryFromConfig(cfg), store, nil, nil)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
				defer cancel()
				_ = engine.Shutdown(shutdownCtx)
			}()

			if err := engine.AddJob(job); err != nil {
				return err
			}

			result := engine.TriggerManualScan(caseID)
			if !result.Success {
				fmt.Println(failLabel("FAILED"), result.Error)
				return fmt.Errorf("scan of case %s failed", caseID)
			}
			fmt.Printf("%s %d new mentions for case %s\n", okLabel("OK"), result.MentionsFound, caseID)

			stats := engine.GetStats()
			if stats.ErrorsCount > 0 {
				fmt.Printf("%s %d source errors\n", warnLabel("WARN"), stats.ErrorsCount)
			}
			for _, pm := range stats.Platforms {
				fmt.Printf("  %-15s calls=%d failed=%d avg=%.0fms\n", pm.Platform, pm.TotalCalls, pm.FailedCalls, pm.AvgResponseTime)
			}
			return nil
		},
	}
}

func queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Parse and build keyword queries",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "parse <query>",
		Short: "Show the keyword groups of a query",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			groups := search.ParseQuery(strings.Join(args, " "))
			for _, g := range groups.List() {
				fmt.Printf("%-4s %s\n", g.Operator, strings.Join(g.Keywords, ", "))
			}
			fmt.Println("normalized:", search.BuildQuery(groups))
		},
	})

	var and, or, not []string
	build := &cobra.Command{
		Use:   "build",
		Short: "Build a query from keyword groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			groups := search.Groups{And: and, Or: or, Not: not}
			if err := groups.Validate(); err != nil {
				return err
			}
			fmt.Println(search.BuildQuery(groups))
			return nil
		},
	}
	build.Flags().StringSliceVar(&and, "and", nil, "keywords that must all appear")
	build.Flags().StringSliceVar(&or, "or", nil, "keywords of which one must appear")
	build.Flags().StringSliceVar(&not, "not", nil, "keywords that must not appear")
	cmd.AddCommand(build)

	return cmd
}

func langCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lang",
		Short: "Language detection helpers",
	}

	var threshold float64
	detect := &cobra.Command{
		Use:   "detect <text>",
		Short: "Detect the language of a text",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			res := language.NewDetector().Detect(strings.Join(args, " "))
			label := okLabel
			if res.Confidence < threshold {
				label = warnLabel
			}
			fmt.Printf("%s confidence=%.2f\n", label(res.Language), res.Confidence)
		},
	}
	detect.Flags().Float64Var(&threshold, "threshold", language.DefaultConfidenceThreshold, "minimum confidence for a detection to count")
	cmd.AddCommand(detect)

	return cmd
}

func archiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect and prune archived mention batches",
		Long: `Works on the blob archive configured by AZURE_STORAGE_ACCOUNT and
AZURE_STORAGE_CONTAINER. Every tick that stores new mentions archives them
under mentions/<case-id>/.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list <case-id>",
		Short: "List the archived batches of a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := openArchive(cmd.Context())
			if err != nil {
				return err
			}

			names, err := archive.List(cmd.Context(), storage.ArchivePrefix(args[0]))
			if err != nil {
				return err
			}
			for _, name := range names {
				at, err := storage.ArchiveTime(name)
				if err != nil {
					fmt.Printf("%s %s\n", warnLabel("?"), name)
					continue
				}
				fmt.Printf("%s %s\n", at.Local().Format(time.RFC3339), name)
			}
			fmt.Printf("%d batches\n", len(names))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <blob>",
		Short: "Print one archived batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := openArchive(cmd.Context())
			if err != nil {
				return err
			}

			data, err := archive.Retrieve(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			var mentions []models.Mention
			if err := json.Unmarshal(data, &mentions); err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}
			for _, m := range mentions {
				fmt.Printf("%-13s %-20s %s\n", m.Platform, m.ExternalID, preview(m.Content))
			}
			return nil
		},
	})

	var olderThan time.Duration
	prune := &cobra.Command{
		Use:   "prune <case-id>",
		Short: "Delete archived batches older than --older-than",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := openArchive(cmd.Context())
			if err != nil {
				return err
			}

			removed, err := storage.PruneArchive(cmd.Context(), archive, args[0], time.Now().Add(-olderThan))
			if err != nil {
				fmt.Println(failLabel("FAILED"), err)
				return fmt.Errorf("pruned %d batches before failing", removed)
			}
			fmt.Printf("%s removed %d batches\n", okLabel("OK"), removed)
			return nil
		},
	}
	prune.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "minimum age of the batches to delete")
	cmd.AddCommand(prune)

	return cmd
}

func openArchive(ctx context.Context) (storage.Archive, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.StorageAccount == "" {
		return nil, fmt.Errorf("AZURE_STORAGE_ACCOUNT is not set")
	}
	return storage.NewBlobArchive(ctx, cfg.StorageAccount, cfg.StorageContainer)
}

func preview(s string) string {
	runes := []rune(s)
	if len(runes) > 80 {
		return string(runes[:80]) + "..."
	}
	return s
}
