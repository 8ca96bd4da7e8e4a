package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-scribe/metronome"
	"go-scribe/pitch"
	"go-scribe/recorder"
	"go-scribe/stopinput"
	"go-scribe/theme"
	"go-scribe/transcribe"
)

const (
	refreshRate = 30 * time.Millisecond
	eventRows   = 12
)

// StateMsg reports a controller state change
type StateMsg recorder.State

// EventMsg carries a finalized event
type EventMsg transcribe.Event

// DoneMsg ends the take
type DoneMsg struct {
	Result recorder.Result
	Err    error
}

type refreshMsg struct{}

// Feed carries recorder callbacks into the program. Sends never block the
// polling loop; a full feed drops the message.
type Feed struct {
	ch chan tea.Msg
}

func NewFeed() *Feed {
	return &Feed{ch: make(chan tea.Msg, 256)}
}

func (f *Feed) OnState(s recorder.State) { f.send(StateMsg(s)) }

func (f *Feed) OnEvent(ev transcribe.Event) { f.send(EventMsg(ev)) }

// Done waits for room in the feed, up to a second if the screen is gone
func (f *Feed) Done(res recorder.Result, err error) {
	select {
	case f.ch <- DoneMsg{Result: res, Err: err}:
	case <-time.After(time.Second):
	}
}

func (f *Feed) send(msg tea.Msg) {
	select {
	case f.ch <- msg:
	default:
	}
}

// Listen waits for the next feed message
func (f *Feed) Listen() tea.Cmd {
	return func() tea.Msg {
		return <-f.ch
	}
}

type Model struct {
	Theme  *theme.Theme
	Params recorder.Params

	feed  *Feed
	key   *stopinput.Gesture
	snap  func() (metronome.Snapshot, bool)
	beats int

	state    recorder.State
	metro    metronome.Snapshot
	events   []transcribe.Event
	total    int
	result   *recorder.Result
	err      error
	stopping bool
	quitting bool
}

// NewModel builds the recording screen. key is the stop gesture armed by
// the recorder; snap reads the live metronome.
func NewModel(th *theme.Theme, p recorder.Params, feed *Feed, key *stopinput.Gesture, snap func() (metronome.Snapshot, bool)) Model {
	beats, _ := p.TimeSignature.BeatsPerMeasure()
	return Model{
		Theme:  th,
		Params: p,
		feed:   feed,
		key:    key,
		snap:   snap,
		beats:  beats,
	}
}

func refresh() tea.Cmd {
	return tea.Tick(refreshRate, func(time.Time) tea.Msg { return refreshMsg{} })
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.feed.Listen(), refresh())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.result != nil || m.err != nil {
				m.quitting = true
				return m, tea.Quit
			}
			m.stopping = true
			m.key.Trigger()

		case " ", "s", "enter":
			if m.result == nil {
				m.stopping = true
				m.key.Trigger()
			}
		}

	case refreshMsg:
		if m.snap != nil {
			if s, ok := m.snap(); ok {
				m.metro = s
			}
		}
		if m.result != nil {
			return m, nil
		}
		return m, refresh()

	case StateMsg:
		m.state = recorder.State(msg)
		return m, m.feed.Listen()

	case EventMsg:
		m.total++
		m.events = append(m.events, transcribe.Event(msg))
		if len(m.events) > eventRows {
			m.events = m.events[len(m.events)-eventRows:]
		}
		return m, m.feed.Listen()

	case DoneMsg:
		res := msg.Result
		m.result = &res
		m.err = msg.Err
		m.state = recorder.Idle
		if m.stopping {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// Result returns the finished take, if any
func (m Model) Result() (*recorder.Result, error) {
	return m.result, m.err
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	fgStyle := lipgloss.NewStyle().Foreground(m.Theme.FG())
	warnStyle := lipgloss.NewStyle().Foreground(m.Theme.Warning())

	var out strings.Builder
	out.WriteString("\n")

	title := m.Params.Title
	if title == "" {
		title = "untitled"
	}
	out.WriteString(headerStyle.Render(fmt.Sprintf("go-scribe  %c %s  %3dbpm  %s  %s",
		m.stateSymbol(), strings.ToUpper(m.state.String()), m.Params.BPM, m.Params.TimeSignature, title)))
	out.WriteString("\n\n")

	out.WriteString(m.beatView())
	out.WriteString("\n\n")

	if len(m.events) == 0 {
		out.WriteString(dimStyle.Render("  no notes yet"))
		out.WriteString("\n")
	}
	for _, ev := range m.events {
		name := pitch.NoteName(int(ev.Note))
		bar := strings.Repeat("█", ev.Sixteenths())
		if ev.IsRest() {
			bar = strings.Repeat(string(m.Theme.Symbols.Rest), ev.Sixteenths())
		}
		line := fmt.Sprintf("  %-5s %5.2f  %s", name, ev.Rhythm, bar)
		out.WriteString(lipgloss.NewStyle().Foreground(m.Theme.NoteColor(ev.Note)).Render(line))
		out.WriteString("\n")
	}

	out.WriteString("\n")
	out.WriteString(fgStyle.Render(fmt.Sprintf("  events: %d", m.total)))
	out.WriteString("\n")

	if m.result != nil {
		summary := fmt.Sprintf("  done: %d events, %d slices, %d overruns", m.result.Count, m.result.Slices, m.result.Overruns)
		if m.result.CeilingHit {
			summary += ", event limit reached"
		}
		out.WriteString(fgStyle.Render(summary))
		out.WriteString("\n")
	}
	if m.err != nil {
		out.WriteString(warnStyle.Render("  error: " + m.err.Error()))
		out.WriteString("\n")
	}

	out.WriteString("\n")
	help := "space/s:stop  q:quit"
	if m.result != nil || m.err != nil {
		help = "q:quit"
	}
	out.WriteString(dimStyle.Render(help))
	return out.String()
}

func (m Model) stateSymbol() rune {
	switch m.state {
	case recorder.PreRoll:
		return m.Theme.Symbols.CountIn
	case recorder.Transcribing, recorder.Finalizing:
		return m.Theme.Symbols.Recording
	}
	return m.Theme.Symbols.Idle
}

// beatView draws one cell per beat with the sixteenth position under the
// current beat, lit only once the metronome is active
func (m Model) beatView() string {
	on := lipgloss.NewStyle().Foreground(m.Theme.Active())
	off := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	sym := m.Theme.Symbols

	var cells []string
	for b := 1; b <= m.beats; b++ {
		switch {
		case !m.metro.Active || b != m.metro.Beat:
			cells = append(cells, off.Render(string(sym.Beat)))
		case b == 1:
			cells = append(cells, on.Render(string(sym.Downbeat)))
		default:
			cells = append(cells, on.Render(string(sym.BeatNow)))
		}
	}
	line := "  " + strings.Join(cells, " ")

	if m.metro.Active {
		line += "  " + off.Render(strings.Repeat(string(sym.Sixteen), m.metro.Sixteenth))
	}
	if m.state == recorder.PreRoll && m.metro.Active {
		line += "  " + off.Render(fmt.Sprintf("count-in %d/%d", m.metro.Beat, m.beats))
	}
	return line
}
