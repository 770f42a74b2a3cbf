package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/pai-guidance/internal/export"
	"github.com/p-n-ai/pai-guidance/internal/studyplan"
)

func init() {
	slotCmd := &cobra.Command{
		Use:   "slot",
		Short: "Manage a student's weekly study slots",
	}
	slotCmd.PersistentFlags().String("student", "", "Student ID (required)")
	slotCmd.MarkPersistentFlagRequired("student")

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a weekly slot",
		Run:   runSlotAdd,
	}
	addCmd.Flags().String("day", "", "Day: 1..7 or weekday name (required)")
	addCmd.Flags().String("start", "", "Start time HH:MM (required)")
	addCmd.Flags().String("end", "", "End time HH:MM (required)")
	addCmd.Flags().StringP("subject", "s", "", "Subject ID (required)")
	for _, f := range []string{"day", "start", "end", "subject"} {
		addCmd.MarkFlagRequired(f)
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List weekly slots",
		Run:   runSlotList,
	}

	rmCmd := &cobra.Command{
		Use:   "rm <slot-id>",
		Short: "Remove a weekly slot",
		Args:  cobra.ExactArgs(1),
		Run:   runSlotRm,
	}

	importCmd := &cobra.Command{
		Use:   "import <file.xlsx>",
		Short: "Import slots from a workbook (columns: Day, Start, End, Subject)",
		Args:  cobra.ExactArgs(1),
		Run:   runSlotImport,
	}

	slotCmd.AddCommand(addCmd, listCmd, rmCmd, importCmd)
	RootCmd.AddCommand(slotCmd)
}

func runSlotAdd(cmd *cobra.Command, args []string) {
	student, _ := cmd.Flags().GetString("student")
	dayStr, _ := cmd.Flags().GetString("day")
	start, _ := cmd.Flags().GetString("start")
	end, _ := cmd.Flags().GetString("end")
	subject, _ := cmd.Flags().GetString("subject")

	day, err := export.ParseDay(dayStr)
	if err != nil {
		exitErr("parse day", err)
	}

	svc, s, err := openService()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	slot, err := svc.AddSlot(cmd.Context(), student, studyplan.WeeklySlot{
		Day:       day,
		Start:     start,
		End:       end,
		SubjectID: subject,
	})
	if err != nil {
		exitErr("add slot", err)
	}

	if textOutput() {
		fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", slot.ID)
		return
	}
	printJSON(cmd, slot)
}

func runSlotList(cmd *cobra.Command, args []string) {
	student, _ := cmd.Flags().GetString("student")

	svc, s, err := openService()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	slots, err := svc.Slots(cmd.Context(), student)
	if err != nil {
		exitErr("list slots", err)
	}
	printSlots(cmd, slots)
}

func runSlotRm(cmd *cobra.Command, args []string) {
	student, _ := cmd.Flags().GetString("student")

	svc, s, err := openService()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := svc.RemoveSlot(cmd.Context(), student, args[0]); err != nil {
		exitErr("rm slot", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"id":%q}`+"\n", args[0])
}

func runSlotImport(cmd *cobra.Command, args []string) {
	student, _ := cmd.Flags().GetString("student")

	f, err := os.Open(args[0])
	if err != nil {
		exitErr("open workbook", err)
	}
	defer f.Close()

	slots, err := export.ReadSlots(f, student)
	if err != nil {
		exitErr("read workbook", err)
	}

	svc, s, err := openService()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	added, err := svc.ImportSlots(cmd.Context(), student, slots)
	if err != nil {
		exitErr("import slots", err)
	}
	printSlots(cmd, added)
}

func printSlots(cmd *cobra.Command, slots []studyplan.WeeklySlot) {
	if !textOutput() {
		printJSON(cmd, slots)
		return
	}
	for _, sl := range slots {
		day := "?"
		if sl.Day >= 1 && sl.Day <= 7 {
			day = weekdayName(sl.Day)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s %s-%s  %s\n", sl.ID, day, sl.Start, sl.End, sl.SubjectID)
	}
}
