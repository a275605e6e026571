package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Snapphil/gamesmith/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored generations",
		Run:   runList,
	}
	cmd.Flags().IntP("limit", "l", 0, "Max rows (default 50)")
	cmd.Flags().BoolP("active", "a", false, "Only records still marked running")
	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	st, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer st.Close()

	var records []store.Record
	if active, _ := cmd.Flags().GetBool("active"); active {
		records, err = st.ListActive(context.Background())
	} else {
		limit, _ := cmd.Flags().GetInt("limit")
		records, err = st.ListRecent(context.Background(), limit)
	}
	if err != nil {
		exitErr("list", err)
	}
	if len(records) == 0 {
		fmt.Println("no generations")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTAGE\tRUNNING\tTOKENS\tUPDATED\tTOPIC")
	for _, rec := range records {
		updated := time.UnixMilli(rec.UpdatedAtUnixMs).Format("2006-01-02 15:04:05")
		topic := rec.InputTopic
		if len(topic) > 48 {
			topic = topic[:45] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%v\t%d\t%s\t%s\n",
			rec.ID, rec.Stage, rec.IsRunning, rec.TokensTotal, updated, topic)
	}
	w.Flush()
}
