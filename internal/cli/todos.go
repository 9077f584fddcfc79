package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Makepad-fr/tada/internal/cache"
	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/tui"
	"github.com/Makepad-fr/tada/internal/ui"
)

func (a *app) list(ctx context.Context, args []string) int {
	fs := newFlagSet("ls", a.err)
	var completed optionalBool
	fs.Var(&completed, "completed", "only completed (true) or open (false) todos")
	priority := fs.String("priority", "", "only todos of this priority")
	plain := fs.Bool("plain", false, "print instead of opening the interactive list")
	group := fs.Bool("group", a.opt.Group, "group the plain listing by pending/done")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	prio, err := parsePriority(*priority)
	if err != nil {
		return a.usage("todo ls: " + err.Error())
	}
	filter := model.TodoFilter{Completed: completed.v, Priority: prio}

	if !*plain && ui.IsTerminal(a.out) {
		if err := tui.Run(ctx, a.cache, tui.Options{Filter: filter}); err != nil {
			return a.fail("tui", err)
		}
		return exitOK
	}

	items, err := a.cache.FetchTodos(ctx, filter)
	if err != nil {
		return a.fail("list", err)
	}
	// numbers always refer to the unfiltered list
	all := items
	if filter != (model.TodoFilter{}) {
		if all, err = a.cache.FetchTodos(ctx, model.TodoFilter{}); err != nil {
			return a.fail("list", err)
		}
	}
	index := make(map[cache.Ref]int, len(all))
	for i, it := range all {
		index[it.Ref] = i + 1
	}
	ui.Panel(a.out, listingLines(items, index, *group))
	return exitOK
}

func (a *app) add(ctx context.Context, args []string) int {
	fs := newFlagSet("add", a.err)
	priority := fs.String("priority", "", "LOW, MEDIUM or HIGH (default MEDIUM)")
	due := fs.String("due", "", "due date, YYYY-MM-DD or RFC 3339")
	desc := fs.String("desc", "", "description")
	rest, err := parseArgs(fs, args)
	if err != nil {
		return exitUsage
	}
	title := strings.TrimSpace(strings.Join(rest, " "))
	if title == "" {
		return a.usage("todo add <title...>")
	}

	n := model.NewTodo{Title: title}
	if n.Priority, err = priorityValue(*priority); err != nil {
		return a.usage("todo add: " + err.Error())
	}
	if *due != "" {
		d, err := parseDue(*due)
		if err != nil {
			return a.usage("todo add: " + err.Error())
		}
		n.DueDate = &d
	}
	if *desc != "" {
		n.Description = desc
	}

	t, err := a.cache.Create(ctx, n)
	if err != nil {
		return a.fail("add", err)
	}
	ui.OK(a.out, "added: "+t.Title)
	return exitOK
}

func priorityValue(s string) (model.Priority, error) {
	p, err := parsePriority(s)
	if err != nil || p == nil {
		return "", err
	}
	return *p, nil
}

func (a *app) toggle(ctx context.Context, args []string) int {
	if len(args) != 1 {
		return a.usage("todo done <n>")
	}
	it, code := a.resolve(ctx, "done", args[0])
	if code != exitOK {
		return code
	}
	t, err := a.cache.Toggle(ctx, it.Ref.ServerID())
	if err != nil {
		return a.fail("done", err)
	}
	if t.Completed {
		ui.OK(a.out, "done: "+t.Title)
	} else {
		ui.OK(a.out, "reopened: "+t.Title)
	}
	return exitOK
}

func (a *app) remove(ctx context.Context, args []string) int {
	if len(args) != 1 {
		return a.usage("todo rm <n>")
	}
	it, code := a.resolve(ctx, "rm", args[0])
	if code != exitOK {
		return code
	}
	if err := a.cache.Delete(ctx, it.Ref.ServerID()); err != nil {
		return a.fail("rm", err)
	}
	ui.OK(a.out, "removed: "+it.Todo.Title)
	return exitOK
}

func (a *app) edit(ctx context.Context, args []string) int {
	const usage = "todo edit <n> [--title T] [--desc D] [--priority P] [--due DATE|--clear-due]"
	fs := newFlagSet("edit", a.err)
	var title, desc optionalString
	fs.Var(&title, "title", "new title")
	fs.Var(&desc, "desc", "new description; empty clears it")
	priority := fs.String("priority", "", "LOW, MEDIUM or HIGH")
	due := fs.String("due", "", "due date, YYYY-MM-DD or RFC 3339")
	clearDue := fs.Bool("clear-due", false, "remove the due date")
	rest, err := parseArgs(fs, args)
	if err != nil {
		return exitUsage
	}
	if len(rest) != 1 {
		return a.usage(usage)
	}

	var patch model.TodoPatch
	if title.set {
		v := strings.TrimSpace(title.v)
		if v == "" {
			return a.usage("todo edit: title cannot be empty")
		}
		patch.Title = &v
	}
	if desc.set {
		if desc.v == "" {
			patch.Description = model.Null[string]()
		} else {
			patch.Description = model.Some(desc.v)
		}
	}
	if patch.Priority, err = parsePriority(*priority); err != nil {
		return a.usage("todo edit: " + err.Error())
	}
	switch {
	case *due != "" && *clearDue:
		return a.usage("todo edit: --due and --clear-due are exclusive")
	case *due != "":
		d, err := parseDue(*due)
		if err != nil {
			return a.usage("todo edit: " + err.Error())
		}
		patch.DueDate = model.Some(d)
	case *clearDue:
		patch.DueDate = model.Null[time.Time]()
	}
	if patch.Empty() {
		return a.usage(usage)
	}

	it, code := a.resolve(ctx, "edit", rest[0])
	if code != exitOK {
		return code
	}
	t, err := a.cache.Update(ctx, it.Ref.ServerID(), patch)
	if err != nil {
		return a.fail("edit", err)
	}
	ui.OK(a.out, "updated: "+t.Title)
	return exitOK
}

func (a *app) show(ctx context.Context, args []string) int {
	if len(args) != 1 {
		return a.usage("todo show <n>")
	}
	it, code := a.resolve(ctx, "show", args[0])
	if code != exitOK {
		return code
	}
	full, err := a.cache.FetchTodo(ctx, it.Ref.ServerID())
	if err != nil {
		return a.fail("show", err)
	}
	ui.Panel(a.out, detailLines(full.Todo))
	return exitOK
}

// resolve maps a 1-based position in the unfiltered list to its todo.
func (a *app) resolve(ctx context.Context, cmd, arg string) (cache.Item, int) {
	n, err := parseIndex(arg)
	if err != nil {
		ui.Fail(a.err, cmd+": "+err.Error())
		return cache.Item{}, exitUsage
	}
	items, err := a.cache.FetchTodos(ctx, model.TodoFilter{})
	if err != nil {
		return cache.Item{}, a.fail(cmd, err)
	}
	if n < 1 || n > len(items) {
		ui.Fail(a.err, fmt.Sprintf("index out of range: have %d, got %d", len(items), n))
		ui.Hint(a.err, "Hint: run `todo ls` to see valid indexes")
		return cache.Item{}, exitUsage
	}
	return items[n-1], exitOK
}
