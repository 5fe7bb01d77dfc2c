package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/teleclaw/internal/config"
	"github.com/nextlevelbuilder/teleclaw/internal/store"
	"github.com/nextlevelbuilder/teleclaw/internal/telegram"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor [directory]",
		Short: "Check environment and configuration health",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dir, _ := os.Getwd()
			if len(args) > 0 {
				dir = config.ExpandHome(args[0])
			}
			runDoctor(dir)
		},
	}
}

func runDoctor(workingDir string) {
	fmt.Println("teleclaw doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Printf("  Dir:      %s\n", workingDir)
	fmt.Println()

	cfg, err := config.Load(workingDir)
	if err != nil {
		fmt.Printf("  Config:   LOAD FAILED (%s)\n", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("  Config:   INVALID (%s)\n", err)
	} else {
		fmt.Printf("  Config:   OK (chat %d, topic %d)\n", cfg.ChatID, cfg.ThreadID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if cfg.BotToken != "" {
		tg, err := telegram.NewClient(cfg.BotToken, cfg.ChatID, cfg.ThreadID, cfg.SendURL)
		if err == nil {
			err = tg.Identify(ctx)
		}
		if err != nil {
			fmt.Printf("  Telegram: FAILED (%s)\n", err)
		} else {
			fmt.Println("  Telegram: OK")
		}
	}

	resp, err := http.Get(cfg.OpenCodeURL + "/config/providers")
	if err != nil {
		fmt.Printf("  Opencode: UNREACHABLE at %s (%s)\n", cfg.OpenCodeURL, err)
	} else {
		resp.Body.Close()
		fmt.Printf("  Opencode: OK at %s\n", cfg.OpenCodeURL)
	}

	if !cfg.UseCoordinator {
		fmt.Println("  Store:    disabled (single-instance)")
		return
	}
	if _, err := store.New(cfg.StoreRoot, config.AppName); err != nil {
		fmt.Printf("  Store:    UNAVAILABLE at %s\n", cfg.StoreRoot)
	} else {
		fmt.Printf("  Store:    OK at %s\n", cfg.StoreRoot)
	}

	fmt.Printf("  Voice:    %v\n", cfg.VoiceEnabled())
	fmt.Printf("  Diffs:    %v\n", cfg.DiffUploadsEnabled())
}
