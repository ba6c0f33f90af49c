// Package ui is the terminal moderation console for the chat server.
package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/npezzotti/go-alumnichat/internal/types"
)

const requestTimeout = 10 * time.Second

// Moderator is the admin surface of the chat API.
type Moderator interface {
	ListAllConversations(ctx context.Context, search string) ([]types.ConversationSummary, error)
	AdminHistory(ctx context.Context, conversationId string) ([]types.Message, error)
	DeleteConversation(ctx context.Context, conversationId string) error
	DeleteMessage(ctx context.Context, messageId int64) error
	Stats(ctx context.Context) (types.Stats, error)
}

type screen int

const (
	screenHome screen = iota
	screenConversations
	screenStats
	screenQuit screen = -1
)

type rootModel struct {
	mod Moderator

	width  int
	height int

	active screen

	homeList list.Model

	conversations *conversationsModel
	stats         *statsModel
}

type menuItem struct {
	title string
	desc  string
	to    screen
}

func (m menuItem) Title() string       { return m.title }
func (m menuItem) Description() string { return m.desc }
func (m menuItem) FilterValue() string { return m.title }

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func NewRootModel(mod Moderator) tea.Model {
	items := []list.Item{
		menuItem{title: "Conversations", desc: "Browse, search and delete conversations", to: screenConversations},
		menuItem{title: "Statistics", desc: "Conversation and message totals", to: screenStats},
		menuItem{title: "Quit", desc: "Exit", to: screenQuit},
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Alumni Chat Moderation"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(true)

	return &rootModel{
		mod:      mod,
		active:   screenHome,
		homeList: l,
	}
}

func (m *rootModel) Init() tea.Cmd {
	return nil
}

func (m *rootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.homeList.SetSize(msg.Width, msg.Height-2)
		if m.conversations != nil {
			m.conversations.SetSize(msg.Width, msg.Height)
		}
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
	}

	switch m.active {
	case screenHome:
		return m.updateHome(msg)
	case screenConversations:
		cmd := m.conversations.Update(msg)
		if m.conversations.Done {
			m.active = screenHome
			m.conversations = nil
		}
		return m, cmd
	case screenStats:
		m.stats.Update(msg)
		if m.stats.Done {
			m.active = screenHome
			m.stats = nil
		}
		return m, nil
	default:
		return m, nil
	}
}

func (m *rootModel) updateHome(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.homeList, cmd = m.homeList.Update(msg)

	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "enter" {
		if it, ok := m.homeList.SelectedItem().(menuItem); ok {
			if it.to == screenQuit {
				return m, tea.Quit
			}
			m.activate(it.to)
			return m, nil
		}
	}

	return m, cmd
}

func (m *rootModel) activate(s screen) {
	m.active = s

	switch s {
	case screenConversations:
		m.conversations = newConversationsModel(m.mod)
		m.conversations.SetSize(m.width, m.height)
	case screenStats:
		m.stats = newStatsModel(m.mod)
	}
}

func (m *rootModel) View() string {
	switch m.active {
	case screenHome:
		return m.homeList.View()
	case screenConversations:
		return m.conversations.View()
	case screenStats:
		return m.stats.View()
	default:
		return titleStyle.Render("Unknown screen") + "\n" + fmt.Sprint(m.active)
	}
}

func withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}
