package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored generation",
		Args:  cobra.ExactArgs(1),
		Run:   runShow,
	}
	cmd.Flags().Bool("doc", false, "Print only the document")
	RootCmd.AddCommand(cmd)
}

func runShow(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	st, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer st.Close()

	rec, err := st.Get(context.Background(), args[0])
	if err != nil {
		exitErr("show", err)
	}
	if rec == nil {
		exitErr("show", fmt.Errorf("generation %s not found", args[0]))
	}

	if docOnly, _ := cmd.Flags().GetBool("doc"); docOnly {
		fmt.Println(rec.Document)
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		exitErr("show", err)
	}
}
