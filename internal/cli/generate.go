package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Snapphil/gamesmith/internal/llm"
	"github.com/Snapphil/gamesmith/internal/pipeline"
)

func init() {
	cmd := &cobra.Command{
		Use:   "generate [topic]",
		Short: "Generate a mini-game for a topic",
		Long: "Generate a complete mobile HTML5 mini-game for the given topic,\n" +
			"walking it through the full improvement pipeline. Ctrl-C stops the\n" +
			"run cooperatively; `gamesmith resume` picks it up later.",
		Args: cobra.MinimumNArgs(1),
		Run:  runGenerate,
	}
	cmd.Flags().String("id", "", "Generation id (default: minted)")
	cmd.Flags().IntP("candidates", "n", 1, "Number of independent candidates (1 or 2)")
	cmd.Flags().StringP("out", "o", "", "Write the final document to this file (default: stdout)")
	RootCmd.AddCommand(cmd)
}

func runGenerate(cmd *cobra.Command, args []string) {
	topic := strings.TrimSpace(strings.Join(args, " "))
	id, _ := cmd.Flags().GetString("id")
	candidates, _ := cmd.Flags().GetInt("candidates")
	outPath, _ := cmd.Flags().GetString("out")
	if candidates != 1 && candidates != 2 {
		exitErr("generate", fmt.Errorf("candidates must be 1 or 2, got %d", candidates))
	}

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

	o, err := buildOrchestrator(cmd, cfg, st, log)
	if err != nil {
		exitErr("generate", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cb := progressCallbacks()

	if candidates == 2 {
		results, err := o.GenerateCandidates(ctx, topic, cb)
		if err != nil {
			exitErr("generate", err)
		}
		for i, c := range results {
			path := fmt.Sprintf("candidate-%d.html", i+1)
			if outPath != "" {
				path = fmt.Sprintf("%s.%d", outPath, i+1)
			}
			if err := os.WriteFile(path, []byte(c.Document), 0o644); err != nil {
				exitErr("write candidate", err)
			}
			fmt.Fprintf(os.Stderr, "candidate %d -> %s (%d tokens)\n", i+1, path, c.Usage.TotalTokens)
		}
		return
	}

	doc, usage, err := o.Run(ctx, id, topic, cb)
	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "stopped; resume with `gamesmith resume`")
			os.Exit(130)
		}
		exitErr("generate", err)
	}
	writeDocument(outPath, doc)
	fmt.Fprintf(os.Stderr, "done: %d input / %d output / %d total tokens\n",
		usage.InputTokens, usage.OutputTokens, usage.TotalTokens)
}

// progressCallbacks renders stage progress and transport state to stderr.
func progressCallbacks() pipeline.Callbacks {
	return pipeline.Callbacks{
		OnProgress: func(label string, progress float64) {
			fmt.Fprintf(os.Stderr, "[%3.0f%%] %s\n", progress*100, label)
		},
		OnStatus: func(status llm.Status) {
			switch status {
			case llm.StatusWaiting:
				fmt.Fprintln(os.Stderr, "      ... still waiting on the model")
			case llm.StatusTimeout:
				fmt.Fprintln(os.Stderr, "      stream stalled, retrying")
			}
		},
	}
}

func writeDocument(path, doc string) {
	if strings.TrimSpace(path) == "" {
		fmt.Println(doc)
		return
	}
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		exitErr("write document", err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", path)
}
