// Command classify sends one image through the submission workflow and prints
// the recommended genre and videos.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"vibetunes/internal/infra"
	"vibetunes/internal/providers/emotion"
	"vibetunes/internal/submission"
)

func main() {
	_ = godotenv.Load()

	imagePath := flag.String("image", "", "path to the face image")
	backendURL := flag.String("backend", os.Getenv("BACKEND_BASE_URL"), "backend base url")
	strategyFlag := flag.String("strategy", os.Getenv("RECOMMENDATION_STRATEGY"), "combined or split")
	delay := flag.Duration("delay", submission.DefaultDelayThreshold, "delay before the advisory is shown")
	timeout := flag.Duration("timeout", 5*time.Minute, "backend request timeout (0 disables)")
	flag.Parse()

	if err := run(*imagePath, *backendURL, *strategyFlag, *delay, *timeout); err != nil {
		fmt.Fprintln(os.Stderr, "classify:", err)
		os.Exit(1)
	}
}

func run(imagePath, backendURL, strategyName string, delay, timeout time.Duration) error {
	if imagePath == "" {
		return fmt.Errorf("-image is required")
	}
	strategy, err := submission.ParseStrategy(strategyName)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	logger := infra.NewLogger("production", "warn")
	backend, err := emotion.NewClient(emotion.Options{BaseURL: backendURL, Logger: &logger, RequestTimeout: timeout})
	if err != nil {
		return err
	}
	ctrl, err := submission.NewController(submission.Options{
		Recommender:    submission.NewRecommender(backend, strategy),
		DelayThreshold: delay,
		Logger:         &logger,
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	if _, err := ctrl.Upload(filepath.Base(imagePath), "", data); err != nil {
		return err
	}
	ctrl.Subscribe(func(st submission.State) {
		if st.Status == submission.StatusLoadingWithDelayWarning {
			fmt.Fprintln(os.Stderr, st.Advisory)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintln(os.Stderr, "Analyzing your mood...")
	st := ctrl.Submit(ctx)
	if st.Status != submission.StatusSucceeded {
		return fmt.Errorf("%s: %s", st.Category, st.Message)
	}

	fmt.Printf("Genre: %s\n", st.GenreLabel)
	if len(st.Videos) == 0 {
		fmt.Println("No videos found for this genre.")
	}
	for i, v := range st.Videos {
		fmt.Printf("%2d. %s (%s) https://www.youtube.com/watch?v=%s\n", i+1, v.Title, v.ChannelTitle, v.ID)
	}
	return nil
}
