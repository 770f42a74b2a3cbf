package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/pai-guidance/internal/export"
	"github.com/p-n-ai/pai-guidance/internal/studyplan"
)

func init() {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan a student's week",
		Long:  "Plan a student's week from their slots and progress. With --commit the planned minutes are recorded as studied.",
		Run:   runPlan,
	}

	cmd.Flags().String("student", "", "Student ID (required)")
	cmd.Flags().StringP("week", "w", "", "Any date in the week, YYYY-MM-DD (default: this week)")
	cmd.Flags().String("xlsx", "", "Also write the plan to this workbook")
	cmd.Flags().Bool("commit", false, "Record the planned study in the progress ledger")
	cmd.MarkFlagRequired("student")

	RootCmd.AddCommand(cmd)
}

func runPlan(cmd *cobra.Command, args []string) {
	student, _ := cmd.Flags().GetString("student")
	weekStr, _ := cmd.Flags().GetString("week")
	xlsxPath, _ := cmd.Flags().GetString("xlsx")
	commit, _ := cmd.Flags().GetBool("commit")

	week, err := parseWeek(weekStr)
	if err != nil {
		exitErr("parse week", err)
	}

	svc, s, err := openService()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	ctx := cmd.Context()
	if _, err := svc.Bootstrap(ctx, student); err != nil {
		exitErr("bootstrap progress", err)
	}

	var plan studyplan.Plan
	if commit {
		plan, err = svc.CommitWeek(ctx, student, week, "")
	} else {
		plan, err = svc.PlanWeek(ctx, student, week)
	}
	if err != nil {
		exitErr("plan week", err)
	}

	var topics []studyplan.Topic
	seen := map[string]bool{}
	for _, e := range plan.Entries {
		if seen[e.SubjectID] {
			continue
		}
		seen[e.SubjectID] = true
		subjectTopics, err := svc.OrderedTopics(ctx, e.SubjectID)
		if err != nil {
			exitErr("load topics", err)
		}
		topics = append(topics, subjectTopics...)
	}
	names := export.NamesFromTopics(topics)

	if xlsxPath != "" {
		f, err := os.Create(xlsxPath)
		if err != nil {
			exitErr("create workbook", err)
		}
		if err := export.WritePlan(f, plan, names); err != nil {
			f.Close()
			exitErr("write workbook", err)
		}
		if err := f.Close(); err != nil {
			exitErr("write workbook", err)
		}
	}

	if !textOutput() {
		printJSON(cmd, struct {
			studyplan.Plan
			Fingerprint string `json:"fingerprint"`
			Committed   bool   `json:"committed"`
		}{plan, plan.Fingerprint(), commit})
		return
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "week of %s for %s\n", plan.WeekStart.Format(time.DateOnly), plan.StudentID)
	if len(plan.Entries) == 0 {
		fmt.Fprintln(out, "  nothing to study")
	}
	for _, e := range plan.Entries {
		fmt.Fprintf(out, "  %s %s %s-%s  %-10s %-28s %3dm (%dm left)\n",
			e.Date.Format(time.DateOnly), e.Date.Format("Mon"), e.Start, e.End,
			e.SubjectID, names.Topic(e.TopicID), e.Allocated, e.RemainingAfter)
	}
	if commit {
		fmt.Fprintln(out, "committed")
	}
}

// parseWeek returns the Monday of the week containing s, or of the current
// week when s is empty.
func parseWeek(s string) (time.Time, error) {
	if s == "" {
		y, m, d := time.Now().Date()
		return studyplan.WeekStartOf(time.Date(y, m, d, 0, 0, 0, 0, time.UTC)), nil
	}
	day, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("week must be YYYY-MM-DD, got %q", s)
	}
	return studyplan.WeekStartOf(day), nil
}

func weekdayName(day int) string {
	return time.Weekday(day % 7).String()[:3]
}
