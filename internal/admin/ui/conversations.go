package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/npezzotti/go-alumnichat/internal/types"
)

const previewLength = 60

type conversationsModel struct {
	mod Moderator

	width  int
	height int

	Done bool

	state conversationsState
	list  list.Model
	err   error

	search   string
	selected *types.ConversationSummary
	messages []types.Message

	form          *huh.Form
	searchInput   string
	confirm       bool
	targetMessage int64
	returnTo      conversationsState
}

type conversationsState int

const (
	conversationsStateList conversationsState = iota
	conversationsStateDetail
	conversationsStateSearch
	conversationsStateDeleteConversation
	conversationsStateDeleteMessage
)

type conversationItem struct {
	summary types.ConversationSummary
}

func (i conversationItem) Title() string { return participantLabel(i.summary.Participants) }
func (i conversationItem) Description() string {
	desc := "last activity " + i.summary.LastActivityAt.Format("2006-01-02 15:04")
	if i.summary.LastMessageText != "" {
		desc += " • " + preview(i.summary.LastMessageText)
	}
	return desc
}
func (i conversationItem) FilterValue() string { return i.Title() }

type messageItem struct {
	msg types.Message
}

func (i messageItem) Title() string {
	sender := i.msg.SenderId
	if i.msg.Sender != nil && i.msg.Sender.Name != "" {
		sender = i.msg.Sender.Name
	}
	return fmt.Sprintf("#%d %s", i.msg.Id, sender)
}
func (i messageItem) Description() string {
	return i.msg.CreatedAt.Format("2006-01-02 15:04") + " • " + preview(i.msg.Content)
}
func (i messageItem) FilterValue() string { return i.msg.Content }

func newConversationsModel(mod Moderator) *conversationsModel {
	m := &conversationsModel{mod: mod, state: conversationsStateList}
	m.list = m.newList(nil)
	m.reloadList()
	return m
}

func (m *conversationsModel) SetSize(w, h int) {
	m.width, m.height = w, h
	m.list.SetSize(w, m.listHeight())
}

func (m *conversationsModel) Update(msg tea.Msg) tea.Cmd {
	if m.err != nil {
		if msg, ok := msg.(tea.KeyMsg); ok {
			switch msg.String() {
			case "esc", "q", "enter":
				m.err = nil
				m.form = nil
				m.selected = nil
				m.state = conversationsStateList
				m.reloadList()
			}
		}
		return nil
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "q":
			// the list would otherwise quit the program
			if m.state == conversationsStateList || m.state == conversationsStateDetail {
				m.back()
				return nil
			}
		case "esc":
			m.back()
			return nil
		}
	}

	switch m.state {
	case conversationsStateList:
		return m.updateList(msg)
	case conversationsStateDetail:
		return m.updateDetail(msg)
	default:
		return m.updateForm(msg)
	}
}

func (m *conversationsModel) updateList(msg tea.Msg) tea.Cmd {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "s", "/":
			return m.startSearch()
		case "r":
			m.reloadList()
			return nil
		case "d":
			if it, ok := m.list.SelectedItem().(conversationItem); ok {
				m.selected = &it.summary
				return m.startDeleteConversation()
			}
			return nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)

	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "enter" {
		it, ok := m.list.SelectedItem().(conversationItem)
		if !ok {
			return cmd
		}
		m.selected = &it.summary
		m.state = conversationsStateDetail
		m.reloadMessages()
		return nil
	}

	return cmd
}

func (m *conversationsModel) updateDetail(msg tea.Msg) tea.Cmd {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "d":
			if it, ok := m.list.SelectedItem().(messageItem); ok {
				m.targetMessage = it.msg.Id
				return m.startDeleteMessage()
			}
			return nil
		case "x":
			return m.startDeleteConversation()
		case "r":
			m.reloadMessages()
			return nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return cmd
}

func (m *conversationsModel) updateForm(msg tea.Msg) tea.Cmd {
	if m.form == nil {
		m.err = fmt.Errorf("internal error: form not initialized")
		return nil
	}

	updated, cmd := m.form.Update(msg)
	f, ok := updated.(*huh.Form)
	if !ok {
		m.err = fmt.Errorf("internal error: unexpected form model type")
		return nil
	}
	m.form = f

	switch m.form.State {
	case huh.StateCompleted:
		m.submitForm()
		return nil
	case huh.StateAborted:
		m.back()
		return nil
	}

	return cmd
}

// submitForm applies the answers of the completed form.
func (m *conversationsModel) submitForm() {
	ctx, cancel := withTimeout()
	defer cancel()

	state := m.state
	m.form = nil

	switch state {
	case conversationsStateSearch:
		m.search = strings.TrimSpace(m.searchInput)
		m.selected = nil
		m.state = conversationsStateList
		m.reloadList()
	case conversationsStateDeleteConversation:
		if m.confirm && m.selected != nil {
			if err := m.mod.DeleteConversation(ctx, m.selected.Id); err != nil {
				m.err = err
				return
			}
		}
		m.selected = nil
		m.state = conversationsStateList
		m.reloadList()
	case conversationsStateDeleteMessage:
		if m.confirm {
			if err := m.mod.DeleteMessage(ctx, m.targetMessage); err != nil {
				m.err = err
				return
			}
		}
		m.state = conversationsStateDetail
		m.reloadMessages()
	}
}

func (m *conversationsModel) View() string {
	if m.err != nil {
		return errStyle.Render("Conversations error: ") + m.err.Error() + "\n\n" + helpStyle.Render("Press Enter/Esc to go back.")
	}

	switch m.state {
	case conversationsStateList:
		m.list.Title = "Conversations"
		if m.search != "" {
			m.list.Title = fmt.Sprintf("Conversations matching %q", m.search)
		}
		return m.list.View() + "\n" + helpStyle.Render("(enter open, s search, d delete, r reload, q back)")
	case conversationsStateDetail:
		if m.selected == nil {
			return "No conversation selected\n\n" + helpStyle.Render("(esc to go back)")
		}
		header := titleStyle.Render(participantLabel(m.selected.Participants)) +
			fmt.Sprintf("\nid %s • %d messages\n", m.selected.Id, len(m.messages))
		m.list.Title = "Messages"
		return header + m.list.View() + "\n" + helpStyle.Render("(d delete message, x delete conversation, r reload, esc back)")
	default:
		return m.form.View() + "\n\n" + helpStyle.Render("(esc to go back)")
	}
}

func (m *conversationsModel) back() {
	switch m.state {
	case conversationsStateList:
		m.Done = true
	case conversationsStateDetail, conversationsStateSearch:
		m.form = nil
		m.selected = nil
		m.state = conversationsStateList
		m.reloadList()
	case conversationsStateDeleteConversation:
		m.form = nil
		if m.returnTo == conversationsStateDetail {
			m.state = conversationsStateDetail
			m.reloadMessages()
			return
		}
		m.selected = nil
		m.state = conversationsStateList
		m.reloadList()
	case conversationsStateDeleteMessage:
		m.form = nil
		m.state = conversationsStateDetail
		m.reloadMessages()
	}
}

func (m *conversationsModel) reloadList() {
	ctx, cancel := withTimeout()
	defer cancel()

	convs, err := m.mod.ListAllConversations(ctx, m.search)
	if err != nil {
		m.err = err
		return
	}

	items := make([]list.Item, 0, len(convs))
	for _, c := range convs {
		items = append(items, conversationItem{summary: c})
	}
	m.list = m.newList(items)
}

func (m *conversationsModel) reloadMessages() {
	if m.selected == nil {
		return
	}

	ctx, cancel := withTimeout()
	defer cancel()

	msgs, err := m.mod.AdminHistory(ctx, m.selected.Id)
	if err != nil {
		m.err = err
		return
	}

	m.messages = msgs
	items := make([]list.Item, 0, len(msgs))
	for _, msg := range msgs {
		items = append(items, messageItem{msg: msg})
	}
	m.list = m.newList(items)
}

func (m *conversationsModel) newList(items []list.Item) list.Model {
	l := list.New(items, list.NewDefaultDelegate(), m.width, m.listHeight())
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(true)
	return l
}

func (m *conversationsModel) listHeight() int {
	if m.state == conversationsStateDetail {
		return m.height - 5
	}
	return m.height - 2
}

func (m *conversationsModel) startSearch() tea.Cmd {
	m.state = conversationsStateSearch
	m.searchInput = m.search
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Search").
				Description("Participant name or email, empty for all").
				Value(&m.searchInput),
		),
	)
	return m.form.Init()
}

func (m *conversationsModel) startDeleteConversation() tea.Cmd {
	m.returnTo = m.state
	m.state = conversationsStateDeleteConversation
	m.confirm = false
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Delete conversation between %s?", participantLabel(m.selected.Participants))).
				Description("All of its messages are removed and participants are notified.").
				Value(&m.confirm),
		),
	)
	return m.form.Init()
}

func (m *conversationsModel) startDeleteMessage() tea.Cmd {
	m.state = conversationsStateDeleteMessage
	m.confirm = false
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().Title(fmt.Sprintf("Delete message #%d?", m.targetMessage)).Value(&m.confirm),
		),
	)
	return m.form.Init()
}

func participantLabel(users []types.User) string {
	names := make([]string, 0, len(users))
	for _, u := range users {
		label := u.Name
		if label == "" {
			label = u.Id
		}
		if u.Email != "" {
			label += " <" + u.Email + ">"
		}
		names = append(names, label)
	}
	return strings.Join(names, ", ")
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= previewLength {
		return s
	}
	return string(r[:previewLength-1]) + "…"
}
