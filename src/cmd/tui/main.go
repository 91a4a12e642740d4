package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"moodmeal/src/internal/config"
	"moodmeal/src/internal/gateway"
	"moodmeal/src/internal/preference"
	"moodmeal/src/internal/recommend"
)

const (
	focusInput = iota
	focusList
)

type Model struct {
	input    textinput.Model
	list     list.Model
	viewport viewport.Model
	gw       *gateway.Gateway
	ctx      context.Context
	cancel   context.CancelFunc
	userID   string
	focus    int
	moods    recommend.DetectedMoods
	status   string
}

type item struct {
	result recommend.Result
}

func (i item) FilterValue() string { return i.result.Meal.Name }

type itemDelegate struct{}

func (d itemDelegate) Height() int { return 1 }

func (d itemDelegate) Spacing() int { return 0 }

func (d itemDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd {
	return nil
}

func (d itemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(item)
	if !ok {
		return
	}
	text := fmt.Sprintf("%d. %s  %.3f", index+1, i.result.Meal.Name, i.result.Score)
	if i.result.Preferred {
		text += "  ★"
	}
	var st lipgloss.Style
	if index == m.Index() {
		st = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62")).PaddingLeft(2)
	} else {
		st = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).PaddingLeft(2)
	}
	fmt.Fprint(w, st.Render(text))
}

type resultsMsg struct {
	moods   recommend.DetectedMoods
	results []recommend.Result
	title   string
	err     error
}

type ratedMsg struct {
	meal   string
	rating int
	err    error
}

func initialModel(ctx context.Context, cancel context.CancelFunc, gw *gateway.Gateway, userID string) Model {
	m := Model{
		ctx:    ctx,
		cancel: cancel,
		gw:     gw,
		userID: userID,
		status: fmt.Sprintf("%d meals loaded", gw.Catalog.Len()),
	}

	m.input = textinput.New()
	m.input.Placeholder = "How are you feeling?"
	m.input.CharLimit = 280
	m.input.Width = 60
	m.input.Focus()

	m.list = list.New(nil, itemDelegate{}, 80, 8)
	m.list.Title = "Recommendations"
	m.list.SetShowHelp(false)
	m.list.SetShowStatusBar(false)
	m.list.SetFilteringEnabled(false)

	m.viewport = viewport.New(80, 8)
	m.viewport.SetContent("Describe your mood and press enter.")
	return m
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) recommendCmd(text string) tea.Cmd {
	return func() tea.Msg {
		out, err := m.gw.Engine.RecommendText(m.ctx, recommend.TextQuery{Text: text, UserID: m.userID})
		return resultsMsg{moods: out.Moods, results: out.Results, title: "Recommendations", err: err}
	}
}

func (m Model) similarCmd(meal recommend.Result) tea.Cmd {
	return func() tea.Msg {
		results, err := m.gw.Engine.FindSimilar(m.ctx, meal.Meal.ID, 0)
		return resultsMsg{moods: m.moods, results: results, title: "Similar to " + meal.Meal.Name, err: err}
	}
}

func (m Model) rateCmd(meal recommend.Result, rating int) tea.Cmd {
	return func() tea.Msg {
		_, err := m.gw.Engine.Rate(m.ctx, recommend.Rating{
			UserID: m.userID,
			Moods:  []string{m.moods.Mood1, m.moods.Mood2},
			MealID: meal.Meal.ID,
			Rating: rating,
		})
		return ratedMsg{meal: meal.Meal.Name, rating: rating, err: err}
	}
}

func (m Model) selected() (recommend.Result, bool) {
	i, ok := m.list.SelectedItem().(item)
	return i.result, ok
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if msg.Width == 0 || msg.Height == 0 {
			return m, nil
		}
		m.list.SetSize(msg.Width, 10)
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-20, 4)
		m.input.Width = max(msg.Width-6, 20)
		return m, nil

	case resultsMsg:
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		m.moods = msg.moods
		items := make([]list.Item, len(msg.results))
		for i, r := range msg.results {
			items[i] = item{result: r}
		}
		m.list.Title = msg.title
		cmds = append(cmds, m.list.SetItems(items))
		m.list.Select(0)
		m.focus = focusList
		m.input.Blur()
		m.status = fmt.Sprintf("Mood: %s / %s (%s)", m.moods.Mood1, m.moods.Mood2, m.moods.Method)
		m.viewport.SetContent(m.detail())
		return m, tea.Batch(cmds...)

	case ratedMsg:
		switch {
		case errors.Is(msg.err, preference.ErrPersist):
			m.status = fmt.Sprintf("Rated %s %d/5 (not saved: %v)", msg.meal, msg.rating, msg.err)
		case msg.err != nil:
			m.status = "Rating failed: " + msg.err.Error()
		default:
			m.status = fmt.Sprintf("Rated %s %d/5", msg.meal, msg.rating)
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.cancel()
			return m, tea.Quit
		case "tab":
			if m.focus == focusInput {
				m.focus = focusList
				m.input.Blur()
			} else {
				m.focus = focusInput
				cmds = append(cmds, m.input.Focus())
			}
			return m, tea.Batch(cmds...)
		}

		if m.focus == focusInput {
			if msg.String() == "enter" {
				text := strings.TrimSpace(m.input.Value())
				if text == "" {
					return m, nil
				}
				m.status = "Thinking..."
				return m, m.recommendCmd(text)
			}
			break
		}

		switch msg.String() {
		case "q":
			m.cancel()
			return m, tea.Quit
		case "1", "2", "3", "4", "5":
			if r, ok := m.selected(); ok {
				rating := int(msg.String()[0] - '0')
				return m, m.rateCmd(r, rating)
			}
			return m, nil
		case "s":
			if r, ok := m.selected(); ok {
				return m, m.similarCmd(r)
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	if m.focus == focusInput {
		m.input, cmd = m.input.Update(msg)
	} else {
		m.list, cmd = m.list.Update(msg)
		m.viewport.SetContent(m.detail())
	}
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) detail() string {
	r, ok := m.selected()
	if !ok {
		return "No recommendations yet."
	}
	meal := r.Meal
	return fmt.Sprintf("%s\n\n%s\n\nMoods: %s, %s | %d kcal | %s | %s",
		meal.Name, r.Explanation, meal.PrimaryMood, meal.SecondaryMood, meal.Calories, meal.CulturalTheme, meal.DietaryTheme)
}

func helpView() string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("242")).
		Padding(0, 1).
		Border(lipgloss.NormalBorder()).
		Render(`enter: recommend | tab: switch focus | ↑↓ select | 1-5 rate | s similar | q/esc quit`)
}

func (m Model) View() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Render("moodmeal")
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Render(m.status)
	return lipgloss.JoinVertical(lipgloss.Left,
		title+"  "+status,
		lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).Render(m.input.View()),
		lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).MaxHeight(12).Render(m.list.View()),
		m.viewport.View(),
		helpView(),
	)
}

func main() {
	var configFile, userID string
	flag.StringVar(&configFile, "config", "", "config path")
	flag.StringVar(&userID, "user", os.Getenv("USER"), "user id for preferences and ratings")
	flag.Parse()
	if userID == "" {
		userID = "local"
	}

	// The terminal belongs to the UI, so logs go to a file.
	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(cfg.StorageDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create storage dir: %v\n", err)
		os.Exit(1)
	}
	logFile, err := os.OpenFile(filepath.Join(cfg.StorageDir, "tui.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	slog.SetDefault(slog.New(slog.NewTextHandler(logFile, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	gw, err := gateway.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start engine: %v\n", err)
		os.Exit(1)
	}
	defer gw.Shutdown(context.Background())

	p := tea.NewProgram(initialModel(ctx, cancel, gw, userID), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		slog.Error("TUI error", "err", err)
		os.Exit(1)
	}
}
