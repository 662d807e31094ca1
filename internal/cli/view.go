package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/valter-silva-au/staffdesk/internal/core"
	"github.com/valter-silva-au/staffdesk/pkg/models"
)

// Record view tabs.
const (
	tabSummary = iota
	tabNotes
	tabHistory
	tabFields
	tabCount
)

var tabNames = [tabCount]string{"Summary", "Notes", "History", "Fields"}

// Composer inputs, cycled with tab while the composer is open.
const (
	focusText = iota
	focusAction
	focusRefs
	focusAdditional
	focusCount
)

type recordViewModel struct {
	ctx    context.Context
	entity models.EntityType
	id     string

	activeTab int
	width     int
	height    int

	// Data.
	page    *pageData
	layouts *core.FieldLayouts
	loads   *core.RequestSequence

	// Composer.
	composer   *core.NoteComposer
	typeahead  *core.Typeahead
	focus      int
	actionIdx  int
	refQuery   string
	suggestion int

	fieldCursor int

	// State.
	loading bool
	status  string
	err     error
}

// pageData is everything a record view renders, loaded off the UI loop.
type pageData struct {
	record  *core.RecordPage
	org     *core.RecordPage
	header  []string
	visible map[string][]string
}

type pageLoadedMsg struct {
	token uint64
	data  *pageData
}

type suggestionsMsg struct {
	token uint64
	refs  []models.EntityReference
	err   error
}

type noteSubmittedMsg struct {
	note *models.Note
	err  error
}

// Style definitions.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	activePanelStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	tabStyle       = lipgloss.NewStyle().Padding(0, 2).Foreground(lipgloss.Color("245"))
	activeTabStyle = lipgloss.NewStyle().Padding(0, 2).Bold(true).Underline(true).Foreground(lipgloss.Color("230"))
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	selectedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newRecordViewModel(ctx context.Context, t models.EntityType, id string) recordViewModel {
	minChars := 0
	if Config != nil {
		minChars = Config.Search.MinChars
	}
	m := recordViewModel{
		ctx:       ctx,
		entity:    t,
		id:        id,
		activeTab: tabSummary,
		layouts:   core.NewFieldLayouts(t, Layouts, logger(), EventLog),
		loads:     &core.RequestSequence{},
		actionIdx: -1,
		loading:   true,
	}
	if Resolver != nil {
		m.typeahead = core.NewTypeahead(Resolver, minChars)
	}
	return m
}

func (m recordViewModel) Init() tea.Cmd {
	return m.loadPage()
}

func (m recordViewModel) loadPage() tea.Cmd {
	ctx, t, id, layouts := m.ctx, m.entity, m.id, m.layouts
	token := m.loads.Next()
	return func() tea.Msg {
		data := &pageData{
			record:  Records.Load(ctx, t, id),
			header:  headerFields(ctx, t),
			visible: make(map[string][]string),
		}
		for _, panel := range core.Panels(t) {
			data.visible[panel] = layouts.Visible(ctx, panel)
		}
		if orgID := organizationOf(data.record.Record); orgID != "" && containsKey(core.Panels(t), core.PanelOrganizationDetails) {
			data.org = Records.Load(ctx, models.EntityOrganization, orgID)
		}
		return pageLoadedMsg{token: token, data: data}
	}
}

func (m recordViewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.composer != nil && m.composer.State() != core.ComposerClosed {
			return m.updateComposer(msg)
		}
		return m.updateBrowse(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case pageLoadedMsg:
		if !m.loads.IsCurrent(msg.token) {
			return m, nil
		}
		m.loading = false
		m.page = msg.data
		m.err = nil
		if rerr := msg.data.record.RecordErr; rerr != nil {
			m.err = fmt.Errorf("loading %s: %w", models.FormatRecordID(m.id, m.entity), rerr)
		}
		switch {
		case m.composer != nil && m.composer.State() != core.ComposerClosed:
			// Keep the draft being written; its note still lands on the new page.
			msg.data.record.AttachComposer(m.composer)
		case Notes != nil:
			m.composer = msg.data.record.NewComposer(Notes, nil, noteActions(m.entity), logger(), EventLog)
		}
		return m, nil

	case suggestionsMsg:
		if m.typeahead != nil && m.typeahead.Apply(msg.token, msg.refs, msg.err) {
			m.suggestion = 0
			if msg.err != nil {
				m.status = "Search failed: " + msg.err.Error()
			}
		}
		return m, nil

	case noteSubmittedMsg:
		return m.noteSubmitted(msg)
	}

	return m, nil
}

func (m recordViewModel) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		return m, tea.Quit
	case "tab", "right":
		m.activeTab = (m.activeTab + 1) % tabCount
		return m, nil
	case "shift+tab", "left":
		m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
		return m, nil
	case "r":
		m.loading = true
		m.status = ""
		return m, m.loadPage()
	case "n":
		if m.composer == nil || m.page == nil {
			return m, nil
		}
		m.composer.Open()
		m.focus = focusText
		m.actionIdx = -1
		m.refQuery = ""
		m.status = ""
		return m, nil
	}

	if m.activeTab == tabFields && m.page != nil {
		entries := m.fieldEntries()
		switch msg.String() {
		case "up", "k":
			if m.fieldCursor > 0 {
				m.fieldCursor--
			}
		case "down", "j":
			if m.fieldCursor < len(entries)-1 {
				m.fieldCursor++
			}
		case " ", "enter":
			if m.fieldCursor < len(entries) {
				panel := m.editablePanel()
				m.page.visible[panel] = m.layouts.Toggle(m.ctx, panel, entries[m.fieldCursor].Key)
			}
		case "x":
			panel := m.editablePanel()
			m.page.visible[panel] = m.layouts.Reset(m.ctx, panel)
		}
	}
	return m, nil
}

func (m recordViewModel) updateComposer(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.composer.Cancel()
		if m.typeahead != nil {
			m.typeahead.Close()
		}
		m.refQuery = ""
		m.status = ""
		return m, nil
	case "ctrl+c":
		return m, tea.Quit
	case "ctrl+s":
		if m.composer.State() != core.ComposerOpen {
			return m, nil
		}
		m.status = "Saving..."
		return m, m.submitNote()
	case "tab":
		return m.setFocus((m.focus + 1) % focusCount), nil
	case "shift+tab":
		return m.setFocus((m.focus - 1 + focusCount) % focusCount), nil
	}

	switch m.focus {
	case focusText:
		_ = m.composer.Edit(func(d *models.NoteDraft) {
			d.Text = editText(d.Text, msg, true)
		})
	case focusAction:
		actions := noteActions(m.entity)
		switch msg.String() {
		case "right", "down", " ":
			m.actionIdx = (m.actionIdx + 1) % len(actions)
		case "left", "up":
			if m.actionIdx < 0 {
				m.actionIdx = 0
			}
			m.actionIdx = (m.actionIdx - 1 + len(actions)) % len(actions)
		default:
			return m, nil
		}
		action := actions[m.actionIdx]
		_ = m.composer.Edit(func(d *models.NoteDraft) { d.Action = action })
	case focusRefs, focusAdditional:
		return m.updateRefs(msg)
	}
	return m, nil
}

// setFocus moves to another composer input, dropping any half-typed
// reference query.
func (m recordViewModel) setFocus(focus int) recordViewModel {
	if focus != m.focus {
		m.refQuery = ""
		m.suggestion = 0
		if m.typeahead != nil {
			m.typeahead.Close()
		}
	}
	m.focus = focus
	return m
}

func (m recordViewModel) updateRefs(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.typeahead == nil {
		return m, nil
	}
	state := m.typeahead.State()
	switch msg.String() {
	case "up":
		if m.suggestion > 0 {
			m.suggestion--
		}
		return m, nil
	case "down":
		if m.suggestion < len(state.Suggestions)-1 {
			m.suggestion++
		}
		return m, nil
	case "enter":
		if state.Open && m.suggestion < len(state.Suggestions) {
			ref := state.Suggestions[m.suggestion]
			if m.focus == focusAdditional {
				_ = m.composer.AddAdditionalReference(ref)
			} else {
				_ = m.composer.AddAboutReference(ref)
			}
			m.typeahead.Close()
			m.refQuery = ""
			m.suggestion = 0
		}
		return m, nil
	case "backspace":
		if m.refQuery == "" {
			draft := m.composer.Draft()
			if m.focus == focusAdditional {
				if n := len(draft.AdditionalReferences); n > 0 {
					_ = m.composer.RemoveAdditionalReference(draft.AdditionalReferences[n-1].Key())
				}
			} else if n := len(draft.AboutReferences); n > 1 {
				_ = m.composer.RemoveAboutReference(draft.AboutReferences[n-1].Key())
			}
			return m, nil
		}
	}

	query := editText(m.refQuery, msg, false)
	if query == m.refQuery {
		return m, nil
	}
	m.refQuery = query
	token, ok := m.typeahead.Begin(query)
	if !ok {
		return m, nil
	}
	return m, m.searchRefs(token, query)
}

func (m recordViewModel) searchRefs(token uint64, query string) tea.Cmd {
	ta, ctx, selected := m.typeahead, m.ctx, m.composer.SelectedReferences()
	return func() tea.Msg {
		refs, err := ta.Search(ctx, query, selected)
		return suggestionsMsg{token: token, refs: refs, err: err}
	}
}

func (m recordViewModel) submitNote() tea.Cmd {
	c, ctx := m.composer, m.ctx
	return func() tea.Msg {
		note, err := c.Submit(ctx)
		return noteSubmittedMsg{note: note, err: err}
	}
}

func (m recordViewModel) noteSubmitted(msg noteSubmittedMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.err == nil:
		m.status = "Note added"
		m.activeTab = tabNotes
		m.refQuery = ""
		if m.typeahead != nil {
			m.typeahead.Close()
		}
	case errors.Is(msg.err, core.ErrSubmitAbandoned):
		m.status = ""
	default:
		if _, ok := core.AsValidationError(msg.err); ok {
			m.status = "Please fix the highlighted fields"
		} else {
			m.status = core.GenericSubmitError
		}
	}
	return m, nil
}

// editText applies a key press to a text input.
func editText(s string, msg tea.KeyMsg, multiline bool) string {
	switch msg.Type {
	case tea.KeyRunes:
		return s + string(msg.Runes)
	case tea.KeySpace:
		return s + " "
	case tea.KeyEnter:
		if multiline {
			return s + "\n"
		}
	case tea.KeyBackspace:
		if r := []rune(s); len(r) > 0 {
			return string(r[:len(r)-1])
		}
	}
	return s
}

// editablePanel is the panel the Fields tab edits.
func (m recordViewModel) editablePanel() string {
	for _, p := range core.Panels(m.entity) {
		if p == core.PanelDetails || p == core.PanelColumns {
			return p
		}
	}
	return core.PanelDetails
}

// fieldEntries lists the fields the Fields tab offers: the enabled ones in
// layout order, then the addable rest in catalog order.
func (m recordViewModel) fieldEntries() []core.CatalogEntry {
	catalog := m.page.record.Catalog()
	visible := m.page.visible[m.editablePanel()]
	out := make([]core.CatalogEntry, 0, len(visible))
	for _, key := range visible {
		if e, ok := catalog.Lookup(key); ok {
			e.Key = key
			out = append(out, e)
		}
	}
	return append(out, catalog.Available(visible)...)
}

func (m recordViewModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	heading := models.FormatRecordID(m.id, m.entity)
	if m.page != nil {
		heading = m.page.record.Heading()
	}
	title := titleStyle.Render(" " + heading + " ")

	if m.loading {
		return fmt.Sprintf("%s\n\n  Loading record...\n\n%s", title, m.help())
	}
	if m.err != nil {
		return fmt.Sprintf("%s\n\n  %s\n\n%s", title, errorStyle.Render("Error: "+m.err.Error()), m.help())
	}

	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(renderFieldStrip(m.page.record.Fields(m.page.header)))
	b.WriteString("\n\n")
	b.WriteString(m.renderTabs())
	b.WriteString("\n")

	width := m.width - 4
	if width < 20 {
		width = 20
	}
	var body string
	switch m.activeTab {
	case tabSummary:
		body = m.renderSummary()
	case tabNotes:
		body = m.renderNotes()
	case tabHistory:
		body = m.renderHistory()
	case tabFields:
		body = m.renderFields()
	}
	b.WriteString(panelStyle.Width(width).Render(body))

	if m.composer != nil && m.composer.State() != core.ComposerClosed {
		b.WriteString("\n")
		b.WriteString(activePanelStyle.Width(width).Render(m.renderComposer()))
	}
	if m.status != "" {
		style := successStyle
		if m.status != "Note added" {
			style = errorStyle
		}
		b.WriteString("\n  " + style.Render(m.status))
	}
	if err := m.page.record.Err(); err != nil {
		b.WriteString("\n  " + errorStyle.Render(err.Error()))
	}
	b.WriteString("\n\n")
	b.WriteString(m.help())
	return b.String()
}

func (m recordViewModel) help() string {
	if m.composer != nil && m.composer.State() != core.ComposerClosed {
		return helpStyle.Render("tab: next input | ←/→: action | enter: add reference | ctrl+s: save | esc: cancel")
	}
	if m.activeTab == tabFields {
		return helpStyle.Render("↑/↓: select | space: show/hide | x: reset | tab: switch tab | q: quit")
	}
	return helpStyle.Render("tab: switch tab | n: add note | r: refresh | q: quit")
}

func (m recordViewModel) renderTabs() string {
	parts := make([]string, tabCount)
	for i, name := range tabNames {
		if i == m.activeTab {
			parts[i] = activeTabStyle.Render(name)
		} else {
			parts[i] = tabStyle.Render(name)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m recordViewModel) renderSummary() string {
	var b strings.Builder
	for _, panel := range core.Panels(m.entity) {
		if panel == core.PanelHeader || panel == core.PanelRecentNotes {
			continue
		}
		page := m.page.record
		if panel == core.PanelOrganizationDetails {
			if m.page.org == nil {
				continue
			}
			page = m.page.org
		}
		b.WriteString(headerStyle.Render(core.HumanizeKey(panel)))
		b.WriteString("\n")
		for _, f := range page.Fields(m.page.visible[panel]) {
			b.WriteString(fmt.Sprintf("  %s %s\n", labelStyle.Render(fmt.Sprintf("%-22s", f.Label)), orDash(f.Value)))
		}
		b.WriteString("\n")
	}

	b.WriteString(headerStyle.Render("Recent Notes"))
	b.WriteString("\n")
	recent := m.page.record.RecentNotes()
	if len(recent) == 0 {
		b.WriteString("  No notes yet\n")
	}
	for _, n := range recent {
		b.WriteString(renderNote(n))
	}
	b.WriteString(fmt.Sprintf("\n  Interviews: %d", m.page.record.Interviews.Count()))
	return b.String()
}

func (m recordViewModel) renderNotes() string {
	notes := m.page.record.Notes.All()
	if len(notes) == 0 {
		return "  No notes yet"
	}
	var b strings.Builder
	for _, n := range notes {
		b.WriteString(renderNote(n))
	}
	return b.String()
}

func (m recordViewModel) renderHistory() string {
	if len(m.page.record.History) == 0 {
		return "  No history"
	}
	labels := m.page.record.HistoryLabels()
	var b strings.Builder
	for _, e := range m.page.record.History {
		by := e.PerformedByName
		if by == "" {
			by = "Unknown"
		}
		b.WriteString(headerStyle.Render(fmt.Sprintf("%s %s", e.PerformedAt.Format("2006-01-02 15:04"), e.Action)))
		b.WriteString(labelStyle.Render(" by " + by))
		b.WriteString("\n")
		for _, line := range core.DescribeHistory(e, labels) {
			b.WriteString("  " + line + "\n")
		}
	}
	return b.String()
}

func (m recordViewModel) renderFields() string {
	panel := m.editablePanel()
	visible := m.page.visible[panel]
	var b strings.Builder
	b.WriteString(headerStyle.Render(core.HumanizeKey(panel) + " fields"))
	b.WriteString("\n")
	for i, e := range m.fieldEntries() {
		mark := "[ ]"
		if containsKey(visible, e.Key) {
			mark = "[x]"
		}
		line := fmt.Sprintf("%s %s", mark, e.Label)
		if e.Custom {
			line += labelStyle.Render(" (custom)")
		}
		if i == m.fieldCursor {
			line = selectedStyle.Render(line)
		}
		b.WriteString("  " + line + "\n")
	}
	return b.String()
}

func (m recordViewModel) renderComposer() string {
	draft := m.composer.Draft()
	errs := m.composer.FieldErrors()
	cursor := func(focus int) string {
		if m.focus == focus {
			return "> "
		}
		return "  "
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("Add Note"))
	b.WriteString("\n")

	b.WriteString(cursor(focusText) + labelStyle.Render("Text: ") + draft.Text)
	if m.focus == focusText {
		b.WriteString("_")
	}
	b.WriteString("\n")
	if msg, ok := errs["text"]; ok {
		b.WriteString("    " + errorStyle.Render(msg) + "\n")
	}

	action := draft.Action
	if action == "" {
		action = "(select)"
	}
	b.WriteString(cursor(focusAction) + labelStyle.Render("Action: ") + action + "\n")
	if msg, ok := errs["action"]; ok {
		b.WriteString("    " + errorStyle.Render(msg) + "\n")
	}

	b.WriteString(m.renderRefInput(focusRefs, "About: ", draft.AboutReferences))
	if msg, ok := errs["about"]; ok {
		b.WriteString("    " + errorStyle.Render(msg) + "\n")
	}
	b.WriteString(m.renderRefInput(focusAdditional, "Also: ", draft.AdditionalReferences))

	if form := m.composer.FormError(); form != "" {
		b.WriteString(errorStyle.Render(form) + "\n")
	}
	return b.String()
}

// renderRefInput draws one reference input with its chips and, when
// focused, the typed query and open suggestions.
func (m recordViewModel) renderRefInput(focus int, label string, refs []models.EntityReference) string {
	chips := make([]string, 0, len(refs))
	for _, r := range refs {
		chips = append(chips, "["+r.Display+"]")
	}
	prefix := "  "
	if m.focus == focus {
		prefix = "> "
	}
	var b strings.Builder
	b.WriteString(prefix + labelStyle.Render(label) + strings.Join(chips, " "))
	if m.focus != focus {
		b.WriteString("\n")
		return b.String()
	}
	b.WriteString(" " + m.refQuery + "_\n")
	if m.typeahead != nil {
		state := m.typeahead.State()
		if state.Loading {
			b.WriteString("    searching...\n")
		}
		for i, ref := range state.Suggestions {
			line := "    " + ref.Display
			if i == m.suggestion {
				line = selectedStyle.Render(line)
			}
			b.WriteString(line + "\n")
		}
	}
	return b.String()
}

func renderFieldStrip(fields []core.RenderedField) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, labelStyle.Render(f.Label+": ")+orDash(f.Value))
	}
	return strings.Join(parts, "  |  ")
}

func renderNote(n models.Note) string {
	author := n.CreatedByName
	if author == "" {
		author = "Unknown"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("  %s %s %s\n",
		labelStyle.Render(n.CreatedAt.Format("2006-01-02 15:04")),
		headerStyle.Render(n.Action),
		labelStyle.Render("by "+author)))
	for _, line := range strings.Split(n.Text, "\n") {
		b.WriteString("    " + line + "\n")
	}
	return b.String()
}

var viewCmd = &cobra.Command{
	Use:   "view <record-id>",
	Short: "Interactive record view",
	Long: `Open an interactive view of a record with Summary, Notes, History and
Fields tabs. Press n to compose a note; the About and Also reference inputs
search every record type as you type.`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeRecordIDs(),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Records == nil {
			return fmt.Errorf("record loader not initialized")
		}
		t, id, err := models.ParseRecordID(args[0])
		if err != nil {
			return err
		}
		p := tea.NewProgram(newRecordViewModel(commandContext(cmd), t, id), tea.WithAltScreen())
		_, err = p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(viewCmd)
}
