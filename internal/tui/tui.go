// Package tui is the interactive todo list. Every action goes through the
// cache as an asynchronous mutation, so the list updates before the server
// answers and snaps back if it refuses.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Makepad-fr/tada/internal/apperr"
	"github.com/Makepad-fr/tada/internal/cache"
	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/ui"
)

// listItem adapts a cached todo to bubbles/list.Item
type listItem struct {
	it cache.Item
}

func (i listItem) TitleText() string {
	t := ui.Current()
	box := t.BoxUnchecked
	if i.it.Todo.Completed {
		box = t.BoxChecked
	}
	return fmt.Sprintf("%s %s", box, i.it.Todo.Title)
}

// Implement list.Item interface
func (i listItem) Title() string       { return i.TitleText() }
func (i listItem) Description() string { return "" }
func (i listItem) FilterValue() string { return i.it.Todo.Title }

// Custom delegate to control how items render (single line)
type itemDelegate struct{}

func (d itemDelegate) Height() int                               { return 1 }
func (d itemDelegate) Spacing() int                              { return 0 }
func (d itemDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }
func (d itemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	li, _ := item.(listItem)
	t := ui.Current()
	todo := li.it.Todo

	box := t.Muted.Render(t.BoxUnchecked)
	text := todo.Title
	if todo.Completed {
		box = t.Success.Render(t.BoxChecked)
		text = t.Done.Render(text)
	}
	line := fmt.Sprintf("%s %s %s", box, ui.PriorityStyle(string(todo.Priority)).Render(priorityTag(todo.Priority)), text)
	if todo.DueDate != nil {
		line += " " + t.Muted.Render("due "+todo.DueDate.Format("2006-01-02"))
	}
	if li.it.Ref.IsPending() {
		line += " " + t.Pending.Render(t.SymSaving+" saving")
	}

	prefix := "  "
	if index == m.Index() {
		prefix = t.Selected.Render("> ")
	}
	fmt.Fprintln(w, prefix+line)
}

func priorityTag(p model.Priority) string {
	switch p {
	case model.PriorityHigh:
		return "!!"
	case model.PriorityLow:
		return " ."
	default:
		return " !"
	}
}

type mode int

const (
	browsing mode = iota
	adding
	editing
)

// completion filter cycle for the f key
var completionCycle = []*bool{nil, ptr(false), ptr(true)}

func ptr[T any](v T) *T { return &v }

type (
	// changedMsg reports that a cache entry changed.
	changedMsg struct{ key cache.Key }
	// settledMsg reports the outcome of an async mutation.
	settledMsg struct {
		what string
		err  error
	}
)

type modelTUI struct {
	ctx     context.Context
	cache   *cache.Cache
	changes <-chan cache.Key
	filter  model.TodoFilter

	list   list.Model
	width  int
	height int

	mode     mode
	ti       textinput.Model // shared text input model (used for add & edit)
	inputErr string
	editID   string

	status string

	// Undo support (single-level): re-creates the last deleted todo.
	undo *model.Todo
}

// Options configure the interactive list.
type Options struct {
	Filter model.TodoFilter
}

// Run starts the Bubble Tea list over c and blocks until the user quits.
func Run(ctx context.Context, c *cache.Cache, opt Options) error {
	changes, cancel := c.Subscribe()
	defer cancel()

	m := newModel(ctx, c, changes, opt)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func newModel(ctx context.Context, c *cache.Cache, changes <-chan cache.Key, opt Options) modelTUI {
	l := list.New(nil, itemDelegate{}, 0, 0)
	t := ui.Current()
	l.SetShowHelp(true)
	l.SetShowPagination(true)
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = t.Title
	l.Styles.HelpStyle = t.Help
	l.Styles.PaginationStyle = t.Help
	l.FilterInput.Prompt = "/ "
	l.SetStatusBarItemName("todo", "todos")

	// Extend help with our bindings
	binds := []key.Binding{
		key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "toggle")),
		key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add")),
		key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit")),
		key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "undo")),
		key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "priority")),
		key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "filter")),
		key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	}
	l.AdditionalShortHelpKeys = func() []key.Binding { return binds[:4] }
	l.AdditionalFullHelpKeys = func() []key.Binding { return binds }

	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 200

	m := modelTUI{
		ctx:     ctx,
		cache:   c,
		changes: changes,
		filter:  opt.Filter,
		list:    l,
		ti:      ti,
	}
	m.width, m.height = ui.Size()
	m.resize()
	m.reload()
	return m
}

// listen waits for the next cache change.
func (m modelTUI) listen() tea.Cmd {
	ch := m.changes
	return func() tea.Msg {
		k, ok := <-ch
		if !ok {
			return nil
		}
		return changedMsg{key: k}
	}
}

// refresh fetches the current list in the foreground. Unlike a read it does
// not wait out the retry delay after a failure.
func (m modelTUI) refresh() tea.Cmd {
	ctx, c, filter := m.ctx, m.cache, m.filter
	return func() tea.Msg {
		_, err := c.FetchTodos(ctx, filter)
		return settledMsg{what: "refresh", err: err}
	}
}

// await reports the outcome of p once it settles.
func await[T any](ctx context.Context, p *cache.Pending[T], what string) tea.Cmd {
	return func() tea.Msg {
		_, err := p.Wait(ctx)
		return settledMsg{what: what, err: err}
	}
}

// reload reads the current list from the cache; a missing or stale entry
// starts a background fetch whose result arrives as a changedMsg.
func (m *modelTUI) reload() {
	res := m.cache.Todos(m.filter)

	items := make([]list.Item, 0, len(res.Value))
	done := 0
	for _, it := range res.Value {
		items = append(items, listItem{it: it})
		if it.Todo.Completed {
			done++
		}
	}
	m.list.SetItems(items)

	t := ui.Current()
	title := fmt.Sprintf("%s   %s %d  %s %d  %s %d  %s",
		t.Title.Render("Todos"),
		t.Success.Render(t.SymDone), done,
		t.Pending.Render(t.SymUnchecked), len(items)-done,
		t.Accent.Render("Total"), len(items),
		t.Muted.Render(filterLabel(m.filter)),
	)
	switch {
	case res.IsLoading:
		title += "  " + t.Muted.Render("loading…")
	case res.IsError && !res.HasValue:
		title += "  " + t.Error.Render(res.Err.Error())
	case res.IsFetching:
		title += "  " + t.Muted.Render("refreshing…")
	}
	m.list.Title = title
}

func filterLabel(f model.TodoFilter) string {
	var parts []string
	switch {
	case f.Completed == nil:
		parts = append(parts, "all")
	case *f.Completed:
		parts = append(parts, "done")
	default:
		parts = append(parts, "open")
	}
	if f.Priority != nil {
		parts = append(parts, strings.ToLower(string(*f.Priority)))
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func (m *modelTUI) resize() {
	h := m.height - 4
	if m.mode != browsing {
		h -= 3
	}
	if m.status != "" {
		h--
	}
	m.list.SetSize(m.width-4, max(h, 3))
}

func (m modelTUI) selected() (cache.Item, bool) {
	li, ok := m.list.SelectedItem().(listItem)
	return li.it, ok
}

// Update and View implement Bubble Tea's Model on modelTUI
func (m modelTUI) Init() tea.Cmd { return m.listen() }

func (m modelTUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil
	case changedMsg:
		if msg.key.IsCollection() {
			m.reload()
		}
		return m, m.listen()
	case settledMsg:
		if msg.err != nil {
			m.status = describe(msg.what, msg.err)
			if msg.what == "delete" {
				m.undo = nil
			}
		}
		m.reload()
		m.resize()
		return m, nil
	}

	if m.mode != browsing {
		return m.updateInput(msg)
	}

	// let the list own keys while its filter prompt is open
	if k, ok := msg.(tea.KeyMsg); ok && m.list.FilterState() != list.Filtering {
		if next, cmd, handled := m.handleKey(k); handled {
			return next, cmd
		}
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m modelTUI) handleKey(k tea.KeyMsg) (modelTUI, tea.Cmd, bool) {
	switch k.String() {
	case "q", "esc":
		if k.String() == "esc" && m.list.FilterState() == list.FilterApplied {
			return m, nil, false
		}
		return m, tea.Quit, true
	case "a":
		m.mode = adding
		m.inputErr = ""
		m.ti.SetValue("")
		m.ti.Placeholder = "New todo title..."
		m.ti.Focus()
		m.resize()
		return m, textinput.Blink, true
	case "r":
		m.status = ""
		m.cache.Invalidate(cache.TodosKey(m.filter))
		m.reload()
		return m, m.refresh(), true
	case "f":
		m.filter.Completed = nextCompletion(m.filter.Completed)
		m.list.ResetSelected()
		m.reload()
		return m, nil, true
	case "u":
		if m.undo == nil {
			return m, nil, true
		}
		t := *m.undo
		m.undo = nil
		p := m.cache.CreateAsync(m.ctx, model.NewTodo{
			Title: t.Title, Description: t.Description, Completed: t.Completed,
			Priority: t.Priority, DueDate: t.DueDate,
		})
		m.reload()
		return m, await(m.ctx, p, "restore"), true
	}

	it, ok := m.selected()
	if !ok {
		return m, nil, false
	}
	var cmd tea.Cmd
	switch k.String() {
	case " ":
		cmd = await(m.ctx, m.cache.ToggleAsync(m.ctx, it.Ref.ServerID()), "toggle")
	case "d":
		deleted := it.Todo.Clone()
		p := m.cache.DeleteAsync(m.ctx, it.Ref.ServerID())
		if p.State() != cache.StateRolledBack {
			m.undo = &deleted
		}
		cmd = await(m.ctx, p, "delete")
	case "p":
		next := it.Todo.Priority.Next()
		cmd = await(m.ctx, m.cache.UpdateAsync(m.ctx, it.Ref.ServerID(), model.TodoPatch{Priority: &next}), "priority")
	case "e":
		if it.Ref.IsPending() {
			m.status = describe("edit", cache.ErrPendingTodo)
			m.resize()
			return m, nil, true
		}
		m.mode = editing
		m.editID = it.Ref.ServerID()
		m.inputErr = ""
		m.ti.SetValue(it.Todo.Title)
		m.ti.CursorEnd()
		m.ti.Placeholder = "Edit todo title..."
		m.ti.Focus()
		m.resize()
		return m, textinput.Blink, true
	default:
		return m, nil, false
	}
	m.status = ""
	m.reload()
	m.resize()
	return m, cmd, true
}

func (m modelTUI) updateInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "enter":
			title := strings.TrimSpace(m.ti.Value())
			if title == "" {
				m.inputErr = "Title cannot be empty"
				return m, nil
			}
			var cmd tea.Cmd
			if m.mode == adding {
				cmd = await(m.ctx, m.cache.CreateAsync(m.ctx, model.NewTodo{Title: title}), "add")
			} else {
				cmd = await(m.ctx, m.cache.UpdateAsync(m.ctx, m.editID, model.TodoPatch{Title: &title}), "edit")
			}
			m = m.closeInput()
			m.status = ""
			m.reload()
			m.resize()
			return m, cmd
		case "esc":
			m = m.closeInput()
			m.resize()
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.ti, cmd = m.ti.Update(msg)
	return m, cmd
}

func (m modelTUI) closeInput() modelTUI {
	m.mode = browsing
	m.editID = ""
	m.ti.SetValue("")
	m.ti.Blur()
	return m
}

func nextCompletion(cur *bool) *bool {
	for i, c := range completionCycle {
		if (c == nil) == (cur == nil) && (c == nil || *c == *cur) {
			return completionCycle[(i+1)%len(completionCycle)]
		}
	}
	return nil
}

// describe turns a failed action into a status line.
func describe(what string, err error) string {
	msg := err.Error()
	switch apperr.KindOf(err) {
	case apperr.KindUnauthenticated:
		msg += " (run `todo auth login`)"
	case apperr.KindInternal:
		if !errors.Is(err, context.Canceled) {
			msg = "unexpected error: " + msg
		}
	}
	return fmt.Sprintf("%s failed: %s", what, msg)
}

func (m modelTUI) View() string {
	t := ui.Current()
	content := m.list.View()
	if m.mode != browsing {
		bar := lipgloss.NewStyle().Border(t.Border).BorderForeground(t.BorderColor).Padding(0, 1)
		title := "Add todo"
		if m.mode == editing {
			title = "Edit todo"
		}
		if m.inputErr != "" {
			title += ": " + t.Error.Render(m.inputErr)
		}
		content += "\n" + bar.Render(title+"\n"+m.ti.View())
	}
	if m.status != "" {
		content += "\n" + t.Error.Render(ui.Truncate(m.status, m.width-6))
	}
	return ui.PanelString(content)
}
