package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func executeCLI() error {
	return buildRootCommand().Execute()
}

func buildRootCommand() *cobra.Command {
	var showVersion bool

	root := &cobra.Command{
		Use:   "mindloop",
		Short: "On-device habit coach with conversational memory",
		Long: strings.TrimSpace(`mindloop is the conversation and memory engine behind the habit
intervention app: an AI coach that remembers confirmed insights,
identified triggers, and effective strategies across sessions.

Use CLI commands to chat with the coach, run guided exercises,
inspect long-term memory, and review daily stats.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion()
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")

	root.AddCommand(newChatCommand())
	root.AddCommand(newGuidedCommand())
	root.AddCommand(newMemoryCommand())
	root.AddCommand(newStatsCommand())
	root.AddCommand(newPlanCommand())
	root.AddCommand(newVersionCommand())

	return root
}

func newChatCommand() *cobra.Command {
	var (
		mode  string
		debug bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive coaching session",
		Long:  "Open a free-form conversation with the coach. The session is summarized into long-term memory on exit.",
		Example: strings.Join([]string{
			"  mindloop chat",
			"  mindloop chat --mode reflect",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := buildApp(ctx, debug)
			if err != nil {
				return err
			}
			defer a.close()
			chatLoop(ctx, a, mode)
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "", "Conversation mode (explore, plan, train, reflect, free)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func newGuidedCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "guided <template>",
		Short: "Run a guided exercise (if-then, trigger-analysis, urge-record)",
		Long:  "Walk through a fixed step template; answers are turned into a plan, a trigger record, or an urge log entry.",
		Args:  cobra.ExactArgs(1),
		Example: strings.Join([]string{
			"  mindloop guided if-then",
			"  mindloop guided urge-record",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := buildApp(ctx, debug)
			if err != nil {
				return err
			}
			defer a.close()
			return guidedLoop(ctx, a, args[0])
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func newMemoryCommand() *cobra.Command {
	memRoot := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and manage long-term memory",
	}

	memRoot.AddCommand(&cobra.Command{
		Use:     "show",
		Short:   "Show insights, triggers, strategies, and recent summaries",
		Example: "  mindloop memory show",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := buildApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.close()
			printMemory(a)
			return nil
		},
	})

	memRoot.AddCommand(&cobra.Command{
		Use:     "confirm <insight_id>",
		Short:   "Mark an insight as confirmed so it is surfaced in prompts",
		Args:    cobra.ExactArgs(1),
		Example: "  mindloop memory confirm ins-abc123",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := buildApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.store.ConfirmInsight(args[0]); err != nil {
				return err
			}
			if err := a.store.Save(ctx); err != nil {
				return err
			}
			fmt.Println("Confirmed:", args[0])
			return nil
		},
	})

	memRoot.AddCommand(&cobra.Command{
		Use:     "clear",
		Short:   "Erase all long-term memory and session summaries",
		Example: "  mindloop memory clear",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := buildApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.store.Clear(ctx); err != nil {
				return err
			}
			fmt.Println("Long-term memory cleared.")
			return nil
		},
	})

	return memRoot
}

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "stats",
		Short:   "Show today's counters and recent day history",
		Example: "  mindloop stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := buildApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.close()
			printStats(ctx, a)
			return nil
		},
	}
}

func newPlanCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "plan",
		Short:   "Show the current if-then plan",
		Example: "  mindloop plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := buildApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.close()
			p, ok := a.settings.Plan()
			if !ok {
				fmt.Println("No plan yet. Create one with: mindloop guided if-then")
				return nil
			}
			fmt.Printf("もし「%s」なら「%s」\n", p.Situation, p.Action)
			fmt.Printf("  作成日: %s\n", p.CreatedAt.Format("2006-01-02"))
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  mindloop version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion()
			return nil
		},
	}
}

func printMemory(a *app) {
	mem := a.store.Memory()

	fmt.Println("Insights:")
	if len(mem.ConfirmedInsights) == 0 {
		fmt.Println("  (none)")
	}
	for _, in := range mem.ConfirmedInsights {
		mark := " "
		if in.ConfirmedByUser {
			mark = "✓"
		}
		fmt.Printf("  [%s] %s  %s\n", mark, in.ID, in.Content)
	}

	fmt.Println("Triggers:")
	if len(mem.IdentifiedTriggers) == 0 {
		fmt.Println("  (none)")
	}
	for _, tr := range mem.IdentifiedTriggers {
		fmt.Printf("  %s (%d回)\n", tr.Trigger, tr.Frequency)
	}

	fmt.Println("Strategies:")
	if len(mem.EffectiveStrategies) == 0 {
		fmt.Println("  (none)")
	}
	for _, st := range mem.EffectiveStrategies {
		fmt.Printf("  %s (effectiveness %.2f, used %d times)\n",
			st.Description, st.Effectiveness, st.UsageCount)
	}

	sums := a.store.Summaries()
	fmt.Printf("Session summaries: %d\n", len(sums))
	for i := len(sums) - 1; i >= 0 && i >= len(sums)-5; i-- {
		fmt.Printf("  %s  %s\n", sums[i].Date, sums[i].Summary)
	}
}

func printStats(ctx context.Context, a *app) {
	today := a.stats.Today(ctx)
	fmt.Printf("%s Stats (%s)\n", appName, today.Date)
	fmt.Printf("  Interventions shown: %d\n", today.InterventionsShown)
	fmt.Printf("  Conversations held:  %d\n", today.ConversationsHeld)
	fmt.Printf("  Urges resisted:      %d\n", today.UrgesResisted)
	fmt.Printf("  Guided completed:    %d\n", today.GuidedCompleted)

	hist := a.stats.History()
	if len(hist) > 0 {
		fmt.Println("Recent days:")
		start := len(hist) - 7
		if start < 0 {
			start = 0
		}
		for _, d := range hist[start:] {
			fmt.Printf("  %s  conv:%d urges:%d guided:%d\n",
				d.Date, d.ConversationsHeld, d.UrgesResisted, d.GuidedCompleted)
		}
	}
}
