package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "edit <id> <instruction...>",
		Short: "Apply a targeted edit to a stored game",
		Long: "Send the stored game with line numbers plus an edit instruction,\n" +
			"then apply the returned line-addressed edit directives in place.",
		Args: cobra.MinimumNArgs(2),
		Run:  runEdit,
	}
	cmd.Flags().StringP("out", "o", "", "Write the edited document to this file (default: stdout)")
	RootCmd.AddCommand(cmd)
}

func runEdit(cmd *cobra.Command, args []string) {
	id := args[0]
	instruction := strings.TrimSpace(strings.Join(args[1:], " "))
	if instruction == "" {
		exitErr("edit", fmt.Errorf("empty instruction"))
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
		exitErr("edit", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	doc, err := o.EditDocument(ctx, id, instruction, progressCallbacks())
	if err != nil {
		exitErr("edit", err)
	}
	outPath, _ := cmd.Flags().GetString("out")
	writeDocument(outPath, doc)
}
