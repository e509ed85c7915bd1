// Command reminder-cli runs one-shot backlog analyses against the tracker
// and prints the results as JSON.
//
// Usage:
//
//	reminder-cli attention --project OPS --max 50
//	reminder-cli attention --jql 'assignee = alice AND resolution = Unresolved'
//	reminder-cli analyze OPS-123 OPS-124
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"reminder-service/internal/analysis"
	"reminder-service/internal/config"
	"reminder-service/internal/db"
	"reminder-service/internal/jira"
	"reminder-service/internal/logging"
	"reminder-service/internal/models"
)

func main() {
	root := &cobra.Command{
		Use:          "reminder-cli",
		Short:        "One-shot backlog reminder analysis",
		SilenceUsage: true,
	}
	root.AddCommand(attentionCmd())
	root.AddCommand(analyzeCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func attentionCmd() *cobra.Command {
	var f models.AttentionFilter
	cmd := &cobra.Command{
		Use:   "attention",
		Short: "Scan for items that need attention",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, o *analysis.Orchestrator) (any, error) {
				return o.FindIssuesNeedingAttention(ctx, f)
			})
		},
	}
	cmd.Flags().StringVar(&f.JQL, "jql", "", "Raw JQL, overrides the other filters")
	cmd.Flags().StringVar(&f.Assignee, "assignee", "", "Only items assigned to this user")
	cmd.Flags().StringSliceVar(&f.Projects, "project", nil, "Project keys")
	cmd.Flags().IntVar(&f.MaxResults, "max", 0, "Maximum items to analyze")
	cmd.Flags().IntVar(&f.UpcomingDays, "upcoming-days", 0, "Due-date window for the upcoming band")
	return cmd
}

func analyzeCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "analyze KEY...",
		Short: "Analyze specific items",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, o *analysis.Orchestrator) (any, error) {
				return o.BatchAnalyze(ctx, models.BatchRequest{IssueKeys: args, ForceRefresh: force})
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", true, "Bypass the analysis cache")
	return cmd
}

// run wires the orchestrator against the tracker and database and prints
// fn's result.
func run(fn func(ctx context.Context, o *analysis.Orchestrator) (any, error)) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer logger.Close()
	logger.SetOutput(os.Stderr)

	eng, err := config.LoadEngine(cfg.EngineFile)
	if err != nil {
		return err
	}
	engine, err := config.NewEngineStore(eng)
	if err != nil {
		return err
	}
	dbConn, err := db.New(ctx, cfg.DB.DSN)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	tracker, err := jira.NewClient(cfg.Jira.BaseURL, cfg.Jira.Username, cfg.Jira.Token, cfg.Jira.StoryPointsField, logger)
	if err != nil {
		return err
	}
	orch := analysis.NewOrchestrator(engine, analysis.Collaborators{
		Items:       tracker,
		Activity:    tracker,
		Preferences: dbConn,
		Sent:        dbConn,
	}, logger, analysis.WithDefaultJQL(cfg.Jira.DefaultJQL))

	out, err := fn(ctx, orch)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
