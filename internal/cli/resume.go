package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "resume [id]",
		Short: "Resume an interrupted generation",
		Long: "Resume a persisted generation at the stage it was about to run.\n" +
			"Without an id, resumes the most recently updated interrupted run.",
		Args: cobra.MaximumNArgs(1),
		Run:  runResume,
	}
	cmd.Flags().StringP("out", "o", "", "Write the final document to this file (default: stdout)")
	RootCmd.AddCommand(cmd)
}

func runResume(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	log := setupLogger(cfg)
	st, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer st.Close()

	var id string
	if len(args) > 0 {
		id = args[0]
	} else {
		// Prefer a record a crashed process left marked running; otherwise
		// fall back to the most recently updated record.
		active, err := st.ListActive(context.Background())
		if err != nil {
			exitErr("list records", err)
		}
		if len(active) > 0 {
			id = active[0].ID
		} else {
			recent, err := st.ListRecent(context.Background(), 1)
			if err != nil {
				exitErr("list records", err)
			}
			if len(recent) == 0 {
				exitErr("resume", fmt.Errorf("nothing to resume"))
			}
			id = recent[0].ID
		}
	}

	o, err := buildOrchestrator(cmd, cfg, st, log)
	if err != nil {
		exitErr("resume", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	doc, usage, err := o.Run(ctx, id, "", progressCallbacks())
	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "stopped; resume again later")
			os.Exit(130)
		}
		exitErr("resume", err)
	}
	outPath, _ := cmd.Flags().GetString("out")
	writeDocument(outPath, doc)
	fmt.Fprintf(os.Stderr, "done: %d total tokens\n", usage.TotalTokens)
}
