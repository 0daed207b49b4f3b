package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/wippyai/witbind/abi"
	"github.com/wippyai/witbind/engine"
	"github.com/wippyai/witbind/layout"
	"github.com/wippyai/witbind/model"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
)

type entry struct {
	fn     *model.Function
	export bool
}

type interactiveModel struct {
	iface    *model.Interface
	wasmFile string
	prefix   string
	gen      *abi.Generator

	rt     *engine.Runtime
	inst   *engine.Instance
	loaded bool

	funcs    []entry
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    modelState

	result string
	err    error
}

type loadedMsg struct {
	rt   *engine.Runtime
	inst *engine.Instance
	err  error
}

type callResultMsg struct {
	result string
	err    error
}

func newInteractiveModel(iface *model.Interface, wasmFile, prefix string) *interactiveModel {
	var funcs []entry
	for _, f := range iface.Exports() {
		funcs = append(funcs, entry{fn: f, export: true})
	}
	for _, f := range iface.Imports() {
		funcs = append(funcs, entry{fn: f})
	}
	return &interactiveModel{
		iface:    iface,
		wasmFile: wasmFile,
		prefix:   prefix,
		gen:      abi.NewGenerator(layout.New(), abi.WithExportPrefix(prefix)),
		funcs:    funcs,
		state:    stateSelectFunc,
	}
}

// callable reports whether every parameter of f can be typed in.
func callable(f *model.Function) bool {
	for _, p := range f.Params {
		if p.Type.Contains(func(t *model.Type) bool { return t.Kind.IsHandle() }) {
			return false
		}
	}
	return true
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.load
}

func (m *interactiveModel) load() tea.Msg {
	if m.wasmFile == "" {
		return loadedMsg{}
	}
	rt, inst, err := instantiate(context.Background(), m.iface, m.wasmFile, m.prefix)
	return loadedMsg{rt: rt, inst: inst, err: err}
}

// canCall reports whether the selected entry is an export of a loaded
// module whose parameters can be typed in.
func (m *interactiveModel) canCall() bool {
	if m.inst == nil || len(m.funcs) == 0 {
		return false
	}
	e := m.funcs[m.selected]
	return e.export && callable(e.fn)
}

// plan renders the listing of the selected entry's plan.
func (m *interactiveModel) plan() string {
	e := m.funcs[m.selected]
	if e.export {
		return m.gen.Export(e.fn).String()
	}
	return m.gen.Import(e.fn).String()
}

func (m *interactiveModel) close() {
	ctx := context.Background()
	if m.inst != nil {
		_ = m.inst.Close(ctx)
	}
	if m.rt != nil {
		_ = m.rt.Close(ctx)
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.close()
			return m, tea.Quit

		case "q":
			if m.state != stateInputArgs {
				m.close()
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs)-1 {
				m.selected++
			}

		case "p":
			if m.state == stateSelectFunc && len(m.funcs) > 0 {
				m.result = m.plan()
				m.err = nil
				m.state = stateShowResult
				return m, nil
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if !m.canCall() {
					return m, nil
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs
				return m, nil

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}
		}

	case loadedMsg:
		m.rt, m.inst, m.err = msg.rt, msg.inst, msg.err
		m.loaded = true
		return m, nil

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
		return m, nil
	}

	if m.state == stateInputArgs {
		cmds := make([]tea.Cmd, len(m.inputs))
		for i := range m.inputs {
			m.inputs[i], cmds[i] = m.inputs[i].Update(msg)
		}
		return m, tea.Batch(cmds...)
	}
	return m, nil
}

func (m *interactiveModel) prepareInputs() {
	f := m.funcs[m.selected].fn
	m.inputs = make([]textinput.Model, len(f.Params))
	for i, p := range f.Params {
		ti := textinput.New()
		ti.Placeholder = p.Type.String()
		ti.Prompt = p.Name + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callFunction() tea.Msg {
	f := m.funcs[m.selected].fn
	args := make([]any, len(m.inputs))
	for i, input := range m.inputs {
		v, err := parseInput(f.Params[i].Type, input.Value())
		if err != nil {
			return callResultMsg{err: fmt.Errorf("%s: %w", f.Params[i].Name, err)}
		}
		args[i] = v
	}

	result, err := m.inst.CallFunc(context.Background(), f, args...)
	if err != nil {
		return callResultMsg{err: err}
	}
	if f.Result == nil {
		return callResultMsg{result: "(no result)"}
	}
	return callResultMsg{result: formatValue(f.Result, result)}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if !m.loaded {
		return "Loading module..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("witbind"))
	b.WriteString(" ")
	b.WriteString(m.iface.QualifiedName())
	if m.wasmFile != "" {
		b.WriteString(" @ ")
		b.WriteString(m.wasmFile)
	}
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		if len(m.funcs) == 0 {
			b.WriteString("The interface declares no functions.\n\n")
			b.WriteString(helpStyle.Render("q quit"))
			break
		}
		b.WriteString("Functions:\n\n")
		for i, e := range m.funcs {
			line := formatFunc(e)
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		help := "↑/↓ select • p plan • q quit"
		if m.canCall() {
			help = "↑/↓ select • enter call • p plan • q quit"
		}
		b.WriteString(helpStyle.Render(help))

	case stateInputArgs:
		f := m.funcs[m.selected].fn
		fmt.Fprintf(&b, "Calling %s\n\n", funcStyle.Render(f.ExportName("")))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(f.Params[i].Type.String()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		f := m.funcs[m.selected].fn
		fmt.Fprintf(&b, "%s:\n\n", funcStyle.Render(f.ExportName("")))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}
	return b.String()
}

func formatFunc(e entry) string {
	f := e.fn
	kind := "import "
	if e.export {
		kind = "export "
	}
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.Name + ": " + typeStyle.Render(p.Type.String())
	}
	result := ""
	if f.Result != nil {
		result = " -> " + typeStyle.Render(f.Result.String())
	}
	return kind + funcStyle.Render(f.ExportName("")) + "(" + strings.Join(params, ", ") + ")" + result
}

func runInteractive(iface *model.Interface, wasmFile, prefix string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("interactive mode needs a terminal")
	}
	p := tea.NewProgram(newInteractiveModel(iface, wasmFile, prefix), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
