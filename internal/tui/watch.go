// Package tui implements `boxgate watch`: a live terminal viewer for one
// sandbox's event stream, fed by the daemon's SSE endpoint.
package tui

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Event is one decoded frame from the daemon's event stream.
type Event struct {
	Name string
	Data json.RawMessage
	At   time.Time
}

// StreamConfig describes the subscription `watch` opens.
type StreamConfig struct {
	BaseURL   string // daemon address, e.g. http://127.0.0.1:18890
	APIKey    string // optional gateway key
	SandboxID string
	Kind      string
	SessionID string
	CommandID string
}

// openStream connects to the daemon's SSE endpoint and decodes frames onto
// the returned channel. The channel closes when the stream ends or ctx is
// cancelled.
func openStream(ctx context.Context, cfg StreamConfig) (<-chan Event, error) {
	q := url.Values{"sandbox_id": {cfg.SandboxID}}
	if cfg.Kind != "" {
		q.Set("kind", cfg.Kind)
	}
	if cfg.SessionID != "" {
		q.Set("session_id", cfg.SessionID)
	}
	if cfg.CommandID != "" {
		q.Set("command_id", cfg.CommandID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(cfg.BaseURL, "/")+"/api/events?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	resp, err := http.DefaultTransport.RoundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.BaseURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("daemon returned %s", resp.Status)
	}

	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		decodeSSE(resp.Body, ch)
	}()
	go func() {
		<-ctx.Done()
		resp.Body.Close()
	}()
	return ch, nil
}

// decodeSSE reads "event:"/"data:" line pairs until the stream ends.
func decodeSSE(r io.Reader, ch chan<- Event) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var name string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ch <- Event{
				Name: name,
				Data: json.RawMessage(strings.TrimPrefix(line, "data: ")),
				At:   time.Now(),
			}
		}
	}
}

const maxLines = 500

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	eventStyles = map[string]lipgloss.Style{
		"connected":       lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		"disconnected":    lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		"sandbox-status":  lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		"sessions-update": lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
		"log":             lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		"log-complete":    lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		"log-error":       lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		"error":           lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

type eventMsg Event
type streamClosedMsg struct{}

type model struct {
	cfg    StreamConfig
	events <-chan Event
	lines  []string
	height int
	closed bool
}

func waitForEvent(events <-chan Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.height = msg.Height
	case eventMsg:
		m.lines = append(m.lines, renderEvent(Event(msg)))
		if len(m.lines) > maxLines {
			m.lines = m.lines[len(m.lines)-maxLines:]
		}
		return m, waitForEvent(m.events)
	case streamClosedMsg:
		m.closed = true
	}
	return m, nil
}

// renderEvent formats one event line. Log chunks show their text verbatim;
// everything else shows the compact payload.
func renderEvent(ev Event) string {
	style, ok := eventStyles[ev.Name]
	if !ok {
		style = dimStyle
	}
	stamp := dimStyle.Render(ev.At.Format("15:04:05"))

	if ev.Name == "log" {
		var payload struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(ev.Data, &payload); err == nil {
			return fmt.Sprintf("%s %s %s", stamp, style.Render("log"),
				strings.TrimRight(payload.Text, "\n"))
		}
	}

	data := string(ev.Data)
	if len(data) > 120 {
		data = data[:120] + "…"
	}
	return fmt.Sprintf("%s %s %s", stamp, style.Render(ev.Name), dimStyle.Render(data))
}

func (m model) View() string {
	var out strings.Builder
	title := fmt.Sprintf("boxgate watch — %s", m.cfg.SandboxID)
	if m.cfg.Kind != "" {
		title += " (" + m.cfg.Kind + ")"
	}
	out.WriteString(headerStyle.Render(title) + "\n\n")

	lines := m.lines
	if m.height > 4 && len(lines) > m.height-4 {
		lines = lines[len(lines)-(m.height-4):]
	}
	for _, l := range lines {
		out.WriteString(l + "\n")
	}

	if m.closed {
		out.WriteString(dimStyle.Render("\nstream closed — press q to quit\n"))
	} else {
		out.WriteString(dimStyle.Render("\npress q to quit\n"))
	}
	return out.String()
}

// Run connects to the daemon and displays the event stream until the user
// quits or ctx is cancelled.
func Run(ctx context.Context, cfg StreamConfig) error {
	defer bestEffortResetTTY()

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := openStream(streamCtx, cfg)
	if err != nil {
		return err
	}

	p := tea.NewProgram(model{cfg: cfg, events: events})

	done := make(chan error, 1)
	go func() {
		_, err := p.Run()
		done <- err
	}()

	select {
	case <-ctx.Done():
		p.Quit()
		return ctx.Err()
	case err := <-done:
		return err
	}
}
