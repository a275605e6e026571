package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stop <id>",
		Short: "Mark a generation as not running",
		Long: "Clear the running flag on a generation record. Useful after a crash\n" +
			"left a record marked running; the generation stays resumable.",
		Args: cobra.ExactArgs(1),
		Run:  runStop,
	}
	RootCmd.AddCommand(cmd)
}

func runStop(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	st, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer st.Close()

	ctx := context.Background()
	rec, err := st.Get(ctx, args[0])
	if err != nil {
		exitErr("stop", err)
	}
	if rec == nil {
		exitErr("stop", fmt.Errorf("generation %s not found", args[0]))
	}
	if err := st.SetRunning(ctx, rec.ID, false, ""); err != nil {
		exitErr("stop", err)
	}
	fmt.Printf("%s stopped at stage %s\n", rec.ID, rec.Stage)
}
