package cli

import (
	"fmt"
	"time"

	"github.com/Makepad-fr/tada/internal/cache"
	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/ui"
)

func stats(items []cache.Item) (done, pending int) {
	for _, it := range items {
		if it.Todo.Completed {
			done++
		} else {
			pending++
		}
	}
	return
}

// listingLines builds the plain listing: header, progress, then todos
// numbered by their position in index.
func listingLines(items []cache.Item, index map[cache.Ref]int, group bool) []string {
	t := ui.Current()
	d, p := stats(items)
	header := fmt.Sprintf("%s  %s %d  %s %d  %s %d",
		t.Title.Render("Todos"),
		t.Success.Render(t.SymDone), d,
		t.Pending.Render(t.SymUnchecked), p,
		t.Accent.Render("Total"), len(items),
	)

	lines := []string{header, t.Muted.Render(ui.ProgressBar(d, d+p, 28)), ""}
	if group {
		lines = append(lines, groupLines(items, index)...)
	} else {
		lines = append(lines, flatLines(items, index)...)
	}
	lines = append(lines, "", t.Muted.Render("Tip: add with `todo add \"Buy milk\"`"))
	return lines
}

func flatLines(items []cache.Item, index map[cache.Ref]int) []string {
	t := ui.Current()
	if len(items) == 0 {
		return []string{t.Muted.Render("no todos")}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		idx := fmt.Sprintf("%2d.", index[it.Ref])
		box, color := t.BoxUnchecked, t.Muted
		if it.Todo.Completed {
			box, color = t.BoxChecked, t.Success
		}
		prio := ui.PriorityStyle(string(it.Todo.Priority)).Render(fmt.Sprintf("%-6s", it.Todo.Priority))
		line := fmt.Sprintf("%s %s %s %s", t.Muted.Render(idx), color.Render(box), prio, ui.Truncate(it.Todo.Title, 60))
		if it.Todo.DueDate != nil {
			line += "  " + dueLabel(*it.Todo.DueDate, it.Todo.Completed)
		}
		out = append(out, line)
	}
	return out
}

func groupLines(items []cache.Item, index map[cache.Ref]int) []string {
	t := ui.Current()
	var pend, done []cache.Item
	for _, it := range items {
		if it.Todo.Completed {
			done = append(done, it)
		} else {
			pend = append(pend, it)
		}
	}
	var lines []string
	lines = append(lines, t.Accent.Render("Pending"))
	if len(pend) == 0 {
		lines = append(lines, t.Muted.Render("(none)"))
	} else {
		lines = append(lines, flatLines(pend, index)...)
	}
	lines = append(lines, "")
	lines = append(lines, t.Accent.Render("Done"))
	if len(done) == 0 {
		lines = append(lines, t.Muted.Render("(none)"))
	} else {
		lines = append(lines, flatLines(done, index)...)
	}
	return lines
}

func dueLabel(due time.Time, completed bool) string {
	label := "due " + due.Format("2006-01-02")
	if !completed && due.Before(time.Now()) {
		return ui.Current().Error.Render(label + " (overdue)")
	}
	return ui.Current().Muted.Render(label)
}

func detailLines(td model.Todo) []string {
	t := ui.Current()
	state := "open"
	if td.Completed {
		state = "done"
	}
	desc := t.Muted.Render("(none)")
	if td.Description != nil && *td.Description != "" {
		desc = *td.Description
	}
	due := t.Muted.Render("(none)")
	if td.DueDate != nil {
		due = td.DueDate.Format(time.RFC3339)
	}
	return []string{
		t.Title.Render(td.Title),
		"",
		"status:      " + state,
		"priority:    " + ui.PriorityStyle(string(td.Priority)).Render(string(td.Priority)),
		"due:         " + due,
		"description: " + desc,
		"created:     " + td.CreatedAt.Format(time.RFC3339),
		"updated:     " + td.UpdatedAt.Format(time.RFC3339),
		t.Muted.Render("id: " + td.ID),
	}
}
