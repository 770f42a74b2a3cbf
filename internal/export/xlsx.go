// Package export writes weekly plans to Excel workbooks and reads weekly
// slot timetables back from them.
package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/p-n-ai/pai-guidance/internal/studyplan"
)

// PlanSheet is the name of the sheet WritePlan produces.
const PlanSheet = "Plan"

var planHeader = []any{"Date", "Day", "Start", "End", "Subject", "Topic", "Minutes", "Remaining after"}

// Names maps subject and topic IDs to display names.
type Names struct {
	Subjects map[string]string
	Topics   map[string]string
}

// Subject returns the display name for a subject ID.
func (n Names) Subject(id string) string {
	if name := n.Subjects[id]; name != "" {
		return name
	}
	return titleID(id)
}

// Topic returns the display name for a topic ID.
func (n Names) Topic(id string) string {
	if name := n.Topics[id]; name != "" {
		return name
	}
	return id
}

// NamesFromTopics builds topic names from catalog topics.
func NamesFromTopics(topics []studyplan.Topic) Names {
	n := Names{Subjects: map[string]string{}, Topics: make(map[string]string, len(topics))}
	for _, t := range topics {
		n.Topics[t.ID] = t.Name
	}
	return n
}

var idSeparators = strings.NewReplacer("-", " ", "_", " ")

func titleID(id string) string {
	return cases.Title(language.English).String(idSeparators.Replace(id))
}

// WritePlan writes plan as a single-sheet workbook to w.
func WritePlan(w io.Writer, plan studyplan.Plan, names Names) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), PlanSheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	if err := f.SetSheetRow(PlanSheet, "A1", &planHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetCellStyle(PlanSheet, "A1", "H1", bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, e := range plan.Entries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			e.Date.Format(time.DateOnly),
			e.Date.Weekday().String(),
			e.Start,
			e.End,
			names.Subject(e.SubjectID),
			names.Topic(e.TopicID),
			e.Allocated,
			e.RemainingAfter,
		}
		if err := f.SetSheetRow(PlanSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(PlanSheet, "A", "B", 12); err != nil {
		return err
	}
	if err := f.SetColWidth(PlanSheet, "E", "F", 28); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// ReadSlots reads weekly slots for studentID from the first sheet of the
// workbook in r. The first row is a header. Columns are Day (1..7 or an
// English weekday name), Start, End and Subject. Blank rows are skipped.
// Only the day is checked here; callers validate the slots.
func ReadSlots(r io.Reader, studentID string) ([]studyplan.WeeklySlot, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %v", studyplan.ErrInvalidInput, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", studyplan.ErrInvalidInput)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}

	slots := []studyplan.WeeklySlot{}
	for i, row := range rows {
		if i == 0 || blank(row) {
			continue
		}
		cols := make([]string, 4)
		for j := range cols {
			if j < len(row) {
				cols[j] = strings.TrimSpace(row[j])
			}
		}
		day, err := ParseDay(cols[0])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", studyplan.ErrInvalidInput, i+1, err)
		}
		slots = append(slots, studyplan.WeeklySlot{
			StudentID: studentID,
			Day:       day,
			Start:     cols[1],
			End:       cols[2],
			SubjectID: cols[3],
		})
	}
	return slots, nil
}

// ParseDay accepts 1..7 (Monday first) or an English weekday name or its
// three-letter abbreviation in any case.
func ParseDay(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > 7 {
			return 0, fmt.Errorf("day %d outside 1..7", n)
		}
		return n, nil
	}
	for d := 1; d <= 7; d++ {
		name := time.Weekday(d % 7).String()
		if strings.EqualFold(s, name) || strings.EqualFold(s, name[:3]) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown day %q", s)
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
