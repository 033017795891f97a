package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wasmshell "github.com/wippyai/wasm-shell"
	"github.com/wippyai/wasm-shell/engine"
	"github.com/wippyai/wasm-shell/runtime"
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

type inspectorModel struct {
	err      error
	opts     options
	rt       *runtime.Runtime
	instance *runtime.Instance
	cleanup  func() error
	result   string
	funcs    []runtime.Function
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    modelState
	loaded   bool
}

type loadedMsg struct {
	err      error
	rt       *runtime.Runtime
	instance *runtime.Instance
	cleanup  func() error
}

type callResultMsg struct {
	err    error
	result string
}

func newInspectorModel(opts options) *inspectorModel {
	return &inspectorModel{opts: opts, state: stateSelectFunc}
}

func (m *inspectorModel) Init() tea.Cmd {
	return m.loadModule
}

func (m *inspectorModel) loadModule() tea.Msg {
	ctx := context.Background()

	src, cleanup, err := newSource(ctx, m.opts, zap.NewNop())
	if err != nil {
		return loadedMsg{err: err}
	}

	rt, err := runtime.New(ctx, src, &engine.Config{Features: m.opts.features})
	if err != nil {
		_ = cleanup()
		return loadedMsg{err: err}
	}

	inst, err := rt.Instantiate(ctx, wasmshell.ModulePath)
	if err != nil {
		rt.Close(ctx)
		_ = cleanup()
		return loadedMsg{err: err}
	}
	return loadedMsg{rt: rt, instance: inst, cleanup: cleanup}
}

func (m *inspectorModel) close() {
	ctx := context.Background()
	if m.instance != nil {
		m.instance.Close(ctx)
	}
	if m.rt != nil {
		m.rt.Close(ctx)
	}
	if m.cleanup != nil {
		_ = m.cleanup()
	}
}

func (m *inspectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.funcs) == 0 {
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
		m.loaded = true
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.rt = msg.rt
		m.instance = msg.instance
		m.cleanup = msg.cleanup
		m.funcs = msg.instance.Functions()

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *inspectorModel) prepareInputs() {
	f := m.funcs[m.selected]
	m.inputs = make([]textinput.Model, len(f.Params))
	for i, p := range f.Params {
		ti := textinput.New()
		ti.Placeholder = api.ValueTypeName(p)
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *inspectorModel) callFunction() tea.Msg {
	result, err := callWithText(context.Background(), m.instance, m.funcs[m.selected], inputValues(m.inputs))
	return callResultMsg{result: result, err: err}
}

func inputValues(inputs []textinput.Model) []string {
	values := make([]string, len(inputs))
	for i, in := range inputs {
		values[i] = in.Value()
	}
	return values
}

// callWithText parses text arguments by f's parameter types, calls f and
// formats its results.
func callWithText(ctx context.Context, inst *runtime.Instance, f runtime.Function, args []string) (string, error) {
	if inst == nil {
		return "", fmt.Errorf("module not loaded")
	}
	if len(args) != len(f.Params) {
		return "", fmt.Errorf("%s takes %d arguments, got %d", f.Name, len(f.Params), len(args))
	}

	raw := make([]uint64, len(args))
	for i, a := range args {
		v, err := runtime.ParseValue(f.Params[i], a)
		if err != nil {
			return "", fmt.Errorf("arg%d: %w", i, err)
		}
		raw[i] = v
	}

	results, err := inst.Call(ctx, f.Name, raw...)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "(no results)", nil
	}

	formatted := make([]string, len(results))
	for i, r := range results {
		formatted[i] = runtime.FormatValue(f.Results[i], r)
	}
	return strings.Join(formatted, ", "), nil
}

func (m *inspectorModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if !m.loaded {
		return "Loading module..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Shell Inspector"))
	b.WriteString(" ")
	b.WriteString(m.instance.Path())
	b.WriteString(" ")
	b.WriteString(typeStyle.Render("[" + m.opts.features.String() + "]"))
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		if len(m.funcs) == 0 {
			b.WriteString("The module exports no functions.\n\n")
			b.WriteString(helpStyle.Render("q quit"))
			break
		}
		b.WriteString("Select a function to call:\n\n")
		for i, f := range m.funcs {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + f.Signature()))
			} else {
				b.WriteString("  " + formatFunc(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(f.Name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(api.ValueTypeName(f.Params[i])))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(f.Name)))
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

func formatFunc(f runtime.Function) string {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = typeStyle.Render(api.ValueTypeName(p))
	}
	sig := funcStyle.Render(f.Name) + "(" + strings.Join(params, ", ") + ")"
	if len(f.Results) == 0 {
		return sig
	}
	results := make([]string, len(f.Results))
	for i, r := range f.Results {
		results[i] = typeStyle.Render(api.ValueTypeName(r))
	}
	return sig + " -> " + strings.Join(results, ", ")
}

func runInteractive(opts options) error {
	p := tea.NewProgram(newInspectorModel(opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
