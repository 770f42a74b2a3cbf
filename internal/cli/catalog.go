package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/pai-guidance/internal/curriculum"
)

func init() {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the topic catalog",
	}

	loadCmd := &cobra.Command{
		Use:   "load <dir>",
		Short: "Load subject YAML files into the catalog",
		Args:  cobra.ExactArgs(1),
		Run:   runCatalogLoad,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List a subject's topics in study order",
		Run:   runCatalogList,
	}
	listCmd.Flags().StringP("subject", "s", "", "Subject ID (required)")
	listCmd.MarkFlagRequired("subject")

	catalogCmd.AddCommand(loadCmd, listCmd)
	RootCmd.AddCommand(catalogCmd)
}

func runCatalogLoad(cmd *cobra.Command, args []string) {
	loader, err := curriculum.NewLoader(args[0])
	if err != nil {
		exitErr("load curriculum", err)
	}

	svc, s, err := openService()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	n, err := loader.Seed(cmd.Context(), svc)
	if err != nil {
		exitErr("seed catalog", err)
	}

	if textOutput() {
		fmt.Fprintf(cmd.OutOrStdout(), "loaded %d topics from %d subjects\n", n, len(loader.Subjects()))
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"subjects":%d,"topics":%d}`+"\n", len(loader.Subjects()), n)
}

func runCatalogList(cmd *cobra.Command, args []string) {
	subject, _ := cmd.Flags().GetString("subject")

	svc, s, err := openService()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	topics, err := svc.OrderedTopics(cmd.Context(), subject)
	if err != nil {
		exitErr("list topics", err)
	}

	if textOutput() {
		for _, t := range topics {
			fmt.Fprintf(cmd.OutOrStdout(), "%3d  %-12s %4dm  %s\n", t.Order, t.ID, t.AvgMinutes, t.Name)
		}
		return
	}
	printJSON(cmd, topics)
}
