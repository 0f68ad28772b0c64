package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/hibiken/asynq"

	"github.com/gatekeep/gatekeep/internal/app"
	"github.com/gatekeep/gatekeep/jobs"
)

// gatekeepctl is a small operator tool: trigger a background job out of
// schedule or inspect the queue.
func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx := context.Background()

	switch os.Args[1] {
	case "trigger":
		if len(os.Args) < 3 {
			usage()
			os.Exit(2)
		}
		if err := trigger(ctx, cfg.RedisAddr, os.Args[2]); err != nil {
			log.Fatalf("trigger %s: %v", os.Args[2], err)
		}
	case "stats":
		if err := stats(cfg.RedisAddr); err != nil {
			log.Fatalf("stats: %v", err)
		}
	default:
		usage()
		os.Exit(2)
	}
}

func trigger(ctx context.Context, redisAddr, name string) error {
	client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: redisAddr})
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Printf("close client: %v", err)
		}
	}()

	var info *asynq.TaskInfo
	switch name {
	case jobs.TaskSessionPrune:
		info, err = client.EnqueueSessionPrune(ctx)
	case jobs.TaskACLRefresh:
		info, err = client.EnqueueACLRefresh(ctx)
	default:
		return fmt.Errorf("unsupported job %q", name)
	}
	if err != nil {
		return err
	}
	fmt.Printf("enqueued %s id=%s queue=%s\n", name, info.ID, info.Queue)
	return nil
}

func stats(redisAddr string) error {
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: redisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			log.Printf("close inspector: %v", err)
		}
	}()

	info, err := inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return err
	}
	fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
		info.Queue, info.Pending, info.Active, info.Scheduled, info.Retry)
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: gatekeepctl trigger <%s|%s> | stats\n",
		jobs.TaskSessionPrune, jobs.TaskACLRefresh)
}
