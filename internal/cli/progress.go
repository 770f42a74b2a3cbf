package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/pai-guidance/internal/studyplan"
)

func init() {
	progressCmd := &cobra.Command{
		Use:   "progress",
		Short: "Inspect and adjust a student's progress ledger",
	}
	progressCmd.PersistentFlags().String("student", "", "Student ID (required)")
	progressCmd.MarkPersistentFlagRequired("student")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List progress for every topic",
		Run:   runProgressList,
	}

	studyCmd := &cobra.Command{
		Use:   "study <topic-id>",
		Short: "Record minutes studied",
		Args:  cobra.ExactArgs(1),
		Run:   runProgressStudy,
	}
	studyCmd.Flags().IntP("minutes", "m", 0, "Minutes studied (required)")
	studyCmd.MarkFlagRequired("minutes")

	resetCmd := &cobra.Command{
		Use:   "reset <topic-id>",
		Short: "Restart a topic from zero",
		Args:  cobra.ExactArgs(1),
		Run:   runProgressReset,
	}

	completeCmd := &cobra.Command{
		Use:   "complete <topic-id>",
		Short: "Mark a topic complete (--done=false clears the flag only)",
		Args:  cobra.ExactArgs(1),
		Run:   runProgressComplete,
	}
	completeCmd.Flags().Bool("done", true, "Completed flag value")

	progressCmd.AddCommand(listCmd, studyCmd, resetCmd, completeCmd)
	RootCmd.AddCommand(progressCmd)
}

func runProgressList(cmd *cobra.Command, args []string) {
	student, _ := cmd.Flags().GetString("student")

	svc, s, err := openService()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	rows, err := svc.Progress(cmd.Context(), student)
	if err != nil {
		exitErr("list progress", err)
	}
	printProgress(cmd, rows...)
}

func runProgressStudy(cmd *cobra.Command, args []string) {
	student, _ := cmd.Flags().GetString("student")
	minutes, _ := cmd.Flags().GetInt("minutes")

	svc, s, err := openService()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	p, err := svc.RecordStudy(cmd.Context(), student, args[0], minutes)
	if err != nil {
		exitErr("record study", err)
	}
	printProgress(cmd, p)
}

func runProgressReset(cmd *cobra.Command, args []string) {
	student, _ := cmd.Flags().GetString("student")

	svc, s, err := openService()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	p, err := svc.ResetTopic(cmd.Context(), student, args[0])
	if err != nil {
		exitErr("reset topic", err)
	}
	printProgress(cmd, p)
}

func runProgressComplete(cmd *cobra.Command, args []string) {
	student, _ := cmd.Flags().GetString("student")
	done, _ := cmd.Flags().GetBool("done")

	svc, s, err := openService()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	p, err := svc.ForceComplete(cmd.Context(), student, args[0], done)
	if err != nil {
		exitErr("complete topic", err)
	}
	printProgress(cmd, p)
}

func printProgress(cmd *cobra.Command, rows ...studyplan.Progress) {
	if !textOutput() {
		if len(rows) == 1 {
			printJSON(cmd, rows[0])
			return
		}
		printJSON(cmd, rows)
		return
	}
	for _, p := range rows {
		mark := " "
		if p.Completed {
			mark = "x"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "[%s] %-12s %4dm done %4dm left\n", mark, p.TopicID, p.CompletedMinutes, p.RemainingMinutes)
	}
}
