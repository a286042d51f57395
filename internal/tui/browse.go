package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tverberg/castpoint/internal/description"
)

// ScanFunc runs one discovery-and-build pass. The browse screen stays
// ignorant of how devices are found; the CLI wires in the control point.
type ScanFunc func() ([]*description.Device, error)

// Messages for async operations
type scanStartMsg struct{}
type scanCompleteMsg struct {
	devices []*description.Device
	err     error
}

// browseKeyMap defines key bindings for the device list
type browseKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Enter  key.Binding
	Rescan key.Binding
	Quit   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k browseKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Enter, k.Rescan, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k browseKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Enter},
		{k.Rescan, k.Quit},
	}
}

// deviceItem wraps a Device for use with bubbles/list
type deviceItem struct {
	device *description.Device
}

// FilterValue lets the list filter by name, model or UDN.
func (d deviceItem) FilterValue() string {
	return d.device.FriendlyName + " " + d.device.ModelName + " " + d.device.UDN
}

// Title returns the device name for list display
func (d deviceItem) Title() string {
	if d.device.FriendlyName != "" {
		return d.device.FriendlyName
	}
	return d.device.UDN
}

// Description returns device details for list display
func (d deviceItem) Description() string {
	ready := 0
	services := d.device.AllServices()
	for _, service := range services {
		if service.State == description.ServiceReady {
			ready++
		}
	}
	return fmt.Sprintf("%s • %d/%d services ready", d.device.UDN, ready, len(services))
}

// deviceDelegate is a custom list delegate for rendering device cards
type deviceDelegate struct {
	width int
}

func (d deviceDelegate) Height() int { return 10 } // Card height including borders

func (d deviceDelegate) Spacing() int { return 1 }

func (d deviceDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d deviceDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	deviceItem, ok := item.(deviceItem)
	if !ok {
		return
	}

	device := deviceItem.device
	selected := index == m.Index()

	model := device.ModelName
	if model == "" {
		model = "Unknown"
	}

	services := device.AllServices()
	ready := 0
	for _, service := range services {
		if service.State == description.ServiceReady {
			ready++
		}
	}

	var content strings.Builder
	if selected {
		content.WriteString(SelectedMenuItemStyle.Render("→ " + deviceItem.Title()))
	} else {
		content.WriteString("  " + deviceItem.Title())
	}
	content.WriteString("\n\n")
	content.WriteString(fmt.Sprintf("  Model:    %s\n", model))
	content.WriteString(fmt.Sprintf("  UDN:      %s\n", device.UDN))
	content.WriteString(fmt.Sprintf("  Type:     %s\n", device.DeviceType))

	statusStyle := lipgloss.NewStyle().Foreground(SecondaryColor).Bold(true)
	if ready < len(services) {
		statusStyle = lipgloss.NewStyle().Foreground(WarningColor).Bold(true)
	}
	content.WriteString(fmt.Sprintf("  Services: %s", statusStyle.Render(fmt.Sprintf("%d/%d ready", ready, len(services)))))

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(BorderColor).
		Padding(1, 2).
		MarginLeft(2)

	cardWidth := d.width - 6
	if cardWidth < MinTerminalWidth-6 {
		cardWidth = MinTerminalWidth - 6
	}
	if cardWidth > MaxContentWidth-6 {
		cardWidth = MaxContentWidth - 6
	}
	cardStyle = cardStyle.Width(cardWidth)

	if selected {
		cardStyle = cardStyle.BorderForeground(HighlightColor)
	}

	fmt.Fprint(w, cardStyle.Render(content.String()))
}

// BrowseModel represents the device browser screen state
type BrowseModel struct {
	Scanning   bool
	DeviceList list.Model
	Selected   bool
	Err        error

	Width         int
	Height        int
	Spinner       spinner.Model
	ScanStartTime time.Time
	Help          help.Model
	Keys          browseKeyMap

	scan ScanFunc
}

// NewBrowseModel creates a new browse screen model around a scan
// function.
func NewBrowseModel(scan ScanFunc) BrowseModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	delegate := deviceDelegate{width: MinTerminalWidth}
	deviceList := list.New([]list.Item{}, delegate, 0, 0)
	deviceList.Title = "Discovered Devices"
	deviceList.SetShowStatusBar(false)
	deviceList.SetFilteringEnabled(true)
	deviceList.Styles.Title = TitleStyle

	keys := browseKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "move down"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "select"),
		),
		Rescan: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "rescan"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc"),
			key.WithHelp("q", "quit"),
		),
	}

	return BrowseModel{
		DeviceList: deviceList,
		Spinner:    s,
		Help:       help.New(),
		Keys:       keys,
		scan:       scan,
	}
}

// Init initializes the browse model
func (m BrowseModel) Init() tea.Cmd {
	return tea.Batch(
		func() tea.Msg { return scanStartMsg{} },
		m.runScan,
		m.Spinner.Tick,
	)
}

// Update handles messages and updates the model
func (m BrowseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit

		case "enter":
			if !m.Scanning && m.DeviceList.SelectedItem() != nil {
				m.Selected = true
				return m, tea.Quit
			}

		case "r":
			if !m.Scanning {
				m.DeviceList.SetItems([]list.Item{})
				m.Err = nil
				return m, tea.Batch(
					func() tea.Msg { return scanStartMsg{} },
					m.runScan,
					m.Spinner.Tick,
				)
			}
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.DeviceList.SetWidth(msg.Width - 4)
		m.DeviceList.SetHeight(msg.Height - 10)

	case scanStartMsg:
		m.Scanning = true
		m.ScanStartTime = time.Now()

	case scanCompleteMsg:
		m.Scanning = false
		m.Err = msg.err
		items := make([]list.Item, len(msg.devices))
		for i, device := range msg.devices {
			items[i] = deviceItem{device: device}
		}
		m.DeviceList.SetItems(items)

	case spinner.TickMsg:
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	if !m.Scanning {
		m.DeviceList, cmd = m.DeviceList.Update(msg)
	}

	return m, cmd
}

// View renders the browse screen
func (m BrowseModel) View() string {
	width := m.Width
	if width == 0 {
		width = MinTerminalWidth
	}

	var content string
	if m.Scanning {
		content = m.renderScanning(width)
	} else {
		content = m.renderResults()
	}

	return RenderApplicationContainer(content, m.Help.View(m.Keys), m.Width, m.Height)
}

// renderScanning renders the centered scanning indicator.
func (m BrowseModel) renderScanning(width int) string {
	elapsed := int(time.Since(m.ScanStartTime).Seconds())

	content := lipgloss.JoinVertical(lipgloss.Center,
		"",
		TitleStyle.Render(fmt.Sprintf("%s SEARCHING FOR UPNP DEVICES", m.Spinner.View())),
		"",
		SubtitleStyle.Render("Sending M-SEARCH and collecting responses..."),
		"",
		SubtitleStyle.Render(fmt.Sprintf("Elapsed: %ds", elapsed)),
		"",
	)

	return lipgloss.Place(width, 0, lipgloss.Center, lipgloss.Top, content)
}

// renderResults renders the device list or an empty/error message.
func (m BrowseModel) renderResults() string {
	var b strings.Builder
	b.WriteString("\n")

	switch {
	case m.Err != nil:
		b.WriteString(RenderError(fmt.Sprintf("Search failed: %v", m.Err)))
		b.WriteString("\n\n")
		b.WriteString("  Troubleshooting:\n")
		b.WriteString("    • Check that multicast is allowed on this network\n")
		b.WriteString("    • Ensure UDP port 1900 is not filtered\n")
		b.WriteString("    • Press 'r' to rescan\n")

	case len(m.DeviceList.Items()) == 0:
		warningStyle := lipgloss.NewStyle().Foreground(WarningColor).Bold(true)
		b.WriteString("  ")
		b.WriteString(warningStyle.Render("⚠ No UPnP devices found on your network"))
		b.WriteString("\n\n")
		b.WriteString("  Troubleshooting:\n")
		b.WriteString("    • Devices answer within the search window; try rescanning\n")
		b.WriteString("    • Some devices only answer broadcast; try --broadcast\n")
		b.WriteString("    • Check that you're on the same network segment\n")

	default:
		b.WriteString(m.DeviceList.View())
	}

	return b.String()
}

// SelectedDevice returns the selected device, or nil.
func (m BrowseModel) SelectedDevice() *description.Device {
	if !m.Selected {
		return nil
	}
	if item, ok := m.DeviceList.SelectedItem().(deviceItem); ok {
		return item.device
	}
	return nil
}

// runScan executes the scan function as a tea command.
func (m BrowseModel) runScan() tea.Msg {
	devices, err := m.scan()
	return scanCompleteMsg{devices: devices, err: err}
}

// Run runs the browse screen to completion and returns the device the
// user selected, or nil if they quit.
func Run(scan ScanFunc) (*description.Device, error) {
	program := tea.NewProgram(NewBrowseModel(scan), tea.WithAltScreen())
	final, err := program.Run()
	if err != nil {
		return nil, err
	}
	model, ok := final.(BrowseModel)
	if !ok {
		return nil, nil
	}
	return model.SelectedDevice(), nil
}
