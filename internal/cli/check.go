package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Snapphil/gamesmith/internal/htmldoc"
)

func init() {
	lintCmd := &cobra.Command{
		Use:   "lint <file>",
		Short: "Run the structural HTML check on a file",
		Args:  cobra.ExactArgs(1),
		Run:   runLint,
	}
	inspectCmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Run the mobile-readiness check on a file",
		Args:  cobra.ExactArgs(1),
		Run:   runInspect,
	}
	RootCmd.AddCommand(lintCmd, inspectCmd)
}

func runLint(cmd *cobra.Command, args []string) {
	doc := readDocFile(args[0])
	issues := htmldoc.Lint(doc)
	if len(issues) == 0 {
		fmt.Println("clean")
		return
	}
	fmt.Println(htmldoc.FormatLintIssues(issues, 50))
	os.Exit(1)
}

func runInspect(cmd *cobra.Command, args []string) {
	doc := readDocFile(args[0])
	issues := htmldoc.Inspect(doc)
	fmt.Println(htmldoc.FormatInspectIssues(issues))
	if htmldoc.ErrorCount(issues) > 0 {
		os.Exit(1)
	}
}

func readDocFile(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		exitErr("read file", err)
	}
	return string(b)
}
