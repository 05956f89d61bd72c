package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"go.uber.org/zap"

	"github.com/mindloop-app/mindloop/pkg/coach"
	"github.com/mindloop-app/mindloop/pkg/config"
	"github.com/mindloop-app/mindloop/pkg/generator"
	"github.com/mindloop-app/mindloop/pkg/guided"
	"github.com/mindloop-app/mindloop/pkg/memory"
	"github.com/mindloop-app/mindloop/pkg/prompt"
	"github.com/mindloop-app/mindloop/pkg/settings"
	"github.com/mindloop-app/mindloop/pkg/stats"
	"github.com/mindloop-app/mindloop/pkg/storage"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

const appName = "mindloop"

func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

func formatBuildInfo() (build string, goVer string) {
	if buildTime != "" {
		build = buildTime
	}
	goVer = goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return
}

func printVersion() {
	fmt.Printf("%s %s\n", appName, formatVersion())
	build, goVer := formatBuildInfo()
	if build != "" {
		fmt.Printf("  Build: %s\n", build)
	}
	if goVer != "" {
		fmt.Printf("  Go: %s\n", goVer)
	}
}

func main() {
	if err := executeCLI(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func getConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".mindloop", "config.json")
}

func loadConfig() (*config.Config, error) {
	return config.LoadConfig(getConfigPath())
}

// app bundles every service the CLI commands touch, constructed once
// per invocation.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	kv       *storage.SQLiteKV
	store    *memory.Store
	settings *settings.Service
	stats    *stats.Service
	coach    *coach.Coach
	guided   *guided.Engine
}

func buildApp(ctx context.Context, debug bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	var log *zap.Logger
	if debug {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	workspace := cfg.WorkspacePath()
	kv, err := storage.NewSQLiteKV(filepath.Join(workspace, "state", "mindloop.db"))
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	store := memory.NewStore(kv, memory.Caps{
		MaxInsights:   cfg.Memory.MaxInsights,
		MaxTriggers:   cfg.Memory.MaxTriggers,
		MaxStrategies: cfg.Memory.MaxStrategies,
		MaxSummaries:  cfg.Memory.MaxSummaries,
	}, log)
	if err := store.Load(ctx); err != nil {
		log.Warn("memory load failed, starting empty", zap.Error(err))
	}

	// One-time pickup of state written by builds that used the plain
	// JSON file store.
	legacyPath := filepath.Join(workspace, "state", "memory.json")
	if _, statErr := os.Stat(legacyPath); statErr == nil {
		if err := store.MigrateLegacy(ctx, storage.NewFileKV(legacyPath)); err != nil {
			log.Warn("legacy memory migration failed", zap.Error(err))
		}
	}

	settingsSvc := settings.NewService(kv, log)
	if err := settingsSvc.Load(ctx); err != nil {
		log.Warn("settings load failed, using defaults", zap.Error(err))
	}

	statsSvc := stats.NewService(kv, cfg.Stats.RolloverSchedule, log)
	if err := statsSvc.Load(ctx); err != nil {
		log.Warn("stats load failed, starting fresh", zap.Error(err))
	}

	builder := prompt.NewBuilder(prompt.Config{
		MaxContextTokens:     cfg.Memory.MaxContextTokens,
		ResponseBufferTokens: cfg.Memory.ResponseBufferTokens,
		TopTriggers:          prompt.DefaultConfig().TopTriggers,
		StrategyThreshold:    prompt.DefaultConfig().StrategyThreshold,
	})

	gen := buildGenerator(cfg)
	c := coach.New(gen, store, builder, coach.Config{
		PersonaID:     cfg.Coach.Persona,
		DefaultModeID: cfg.Coach.DefaultMode,
	}, log)

	eng := guided.NewEngine(guided.Sinks{
		Plans:  settingsSvc,
		Urges:  settingsSvc,
		Memory: store,
	}, log)

	return &app{
		cfg:      cfg,
		log:      log,
		kv:       kv,
		store:    store,
		settings: settingsSvc,
		stats:    statsSvc,
		coach:    c,
		guided:   eng,
	}, nil
}

func (a *app) close() {
	_ = a.log.Sync()
	if err := a.kv.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: closing state store: %v\n", err)
	}
}

func buildGenerator(cfg *config.Config) generator.Generator {
	if cfg.Generator.Kind == "http" {
		return generator.NewHTTPGenerator(generator.HTTPConfig{
			APIBase:     cfg.Generator.APIBase,
			APIKey:      cfg.Generator.APIKey,
			Model:       cfg.Generator.Model,
			MaxTokens:   cfg.Generator.MaxTokens,
			Temperature: cfg.Generator.Temperature,
			Timeout:     60 * time.Second,
		})
	}
	return generator.NewPatternGenerator()
}

func chatLoop(ctx context.Context, a *app, mode string) {
	a.coach.StartSession(mode)
	a.coach.AddAIGreeting("こんにちは。今日はどんなことを話しましょうか？")
	a.stats.ConversationHeld(ctx)
	fmt.Printf("%s コーチ: こんにちは。今日はどんなことを話しましょうか？\n", appName)
	fmt.Println("(exit または Ctrl+C で終了)")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("%s You: ", appName),
		HistoryFile:     filepath.Join(os.TempDir(), ".mindloop_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Printf("Error initializing readline: %v\n", err)
		fmt.Println("Falling back to simple input mode...")
		simpleChatLoop(ctx, a)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				finishChat(ctx, a, coach.EndTriggerNavigation)
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}
		if !handleChatInput(ctx, a, line) {
			return
		}
	}
}

func simpleChatLoop(ctx context.Context, a *app) {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Printf("%s You: ", appName)
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				finishChat(ctx, a, coach.EndTriggerNavigation)
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}
		if !handleChatInput(ctx, a, line) {
			return
		}
	}
}

// handleChatInput processes one line; false means the loop should end.
func handleChatInput(ctx context.Context, a *app, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return true
	}
	if input == "exit" || input == "quit" {
		finishChat(ctx, a, coach.EndTriggerUser)
		return false
	}

	reply, err := a.coach.SendMessage(ctx, input)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return true
	}
	fmt.Printf("\n%s コーチ: %s\n\n", appName, reply.Content)
	return true
}

func finishChat(ctx context.Context, a *app, trigger coach.EndTrigger) {
	if sum := a.coach.EndSession(ctx, trigger); sum != nil {
		fmt.Printf("\n今日の対話を記録しました (%d件のメッセージ", sum.MessageCount)
		if len(sum.Insights) > 0 {
			fmt.Printf("、%d件の気づき", len(sum.Insights))
		}
		fmt.Println(")")
	}
	fmt.Println("おつかれさまでした。")
}

func guidedLoop(ctx context.Context, a *app, templateID string) error {
	if !a.guided.Start(templateID) {
		ids := []string{}
		for _, t := range a.guided.Templates() {
			ids = append(ids, t.ID)
		}
		return fmt.Errorf("unknown template %q (available: %s)", templateID, strings.Join(ids, ", "))
	}

	reader := bufio.NewReader(os.Stdin)
	for {
		step, ok := a.guided.CurrentStep()
		if !ok {
			return nil
		}
		fmt.Printf("\n%s\n", step.Prompt)
		if len(step.Options) > 0 {
			fmt.Printf("(例: %s)\n", strings.Join(step.Options, " / "))
		}
		fmt.Print("> ")

		line, err := reader.ReadString('\n')
		if err != nil {
			a.guided.Cancel()
			if err == io.EOF {
				fmt.Println("\n中断しました。回答は保存されません。")
				return nil
			}
			return err
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "cancel" {
			a.guided.Cancel()
			fmt.Println("中断しました。回答は保存されません。")
			return nil
		}

		done, err := a.guided.Advance(ctx, input)
		if err != nil {
			return err
		}
		if done {
			a.stats.GuidedCompleted(ctx)
			fmt.Println("\n記録しました。おつかれさまでした。")
			return nil
		}
	}
}
