package ui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/npezzotti/go-alumnichat/internal/types"
)

type statsModel struct {
	mod Moderator

	Done bool

	stats     types.Stats
	fetchedAt time.Time
	err       error
}

func newStatsModel(mod Moderator) *statsModel {
	m := &statsModel{mod: mod}
	m.reload()
	return m
}

func (m *statsModel) Update(msg tea.Msg) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return
	}

	switch km.String() {
	case "q", "esc":
		m.Done = true
	case "r":
		m.reload()
	}
}

func (m *statsModel) View() string {
	if m.err != nil {
		return errStyle.Render("Stats error: ") + m.err.Error() + "\n\n" + helpStyle.Render("(r retry, esc back)")
	}

	return titleStyle.Render("Statistics") + "\n\n" +
		fmt.Sprintf("Conversations: %d\nMessages:      %d\n\nAs of %s", m.stats.Conversations, m.stats.Messages, m.fetchedAt.Format("2006-01-02 15:04:05")) +
		"\n\n" + helpStyle.Render("(r refresh, esc back)")
}

func (m *statsModel) reload() {
	ctx, cancel := withTimeout()
	defer cancel()

	st, err := m.mod.Stats(ctx)
	if err != nil {
		m.err = err
		return
	}

	m.err = nil
	m.stats = st
	m.fetchedAt = time.Now()
}
