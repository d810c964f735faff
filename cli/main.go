package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const refreshInterval = 5 * time.Second

// Styling
var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#C0392B")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#0a84ff")).
			Padding(0, 1)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#30d158")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#ff453a")).
			Padding(0, 1)
)

// statusKeys maps board shortcuts onto order statuses
var statusKeys = map[string]string{
	"p": "preparing",
	"y": "ready",
	"d": "delivered",
	"x": "cancelled",
}

// typeFilters is the cycle of the board's type filter; "" shows all
var typeFilters = []string{"", "dine_in", "car_pickup", "delivery"}

// Model defines the application state
type Model struct {
	mainMenu    list.Model
	board       table.Model
	orders      []Order
	orderDetail Order
	stats       *Stats
	health      *Health
	spinner     spinner.Model
	textInput   textinput.Model
	client      *ApiClient
	filter      int
	loading     bool
	currentView string
	message     string
	error       string
}

// item represents a list item
type item struct {
	title, desc string
}

// FilterValue implements list.Item interface
func (i item) FilterValue() string { return i.title }

// Title implements list.Item interface
func (i item) Title() string { return i.title }

// Description implements list.Item interface
func (i item) Description() string { return i.desc }

// Initialize the model
func initialModel(client *ApiClient) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	items := []list.Item{
		item{title: "Order Board", desc: "Live orders, change status with one key"},
		item{title: "New Order", desc: "Enter a phone or walk-in order"},
		item{title: "Statistics", desc: "Today's orders and revenue"},
		item{title: "Exit", desc: "Exit the application"},
	}
	mainMenu := list.New(items, list.NewDefaultDelegate(), 40, 14)
	mainMenu.Title = "Taboon Staff Console"

	board := table.New(
		table.WithColumns([]table.Column{
			{Title: "Order", Width: 7},
			{Title: "Customer", Width: 16},
			{Title: "Items", Width: 30},
			{Title: "Type", Width: 11},
			{Title: "Status", Width: 10},
			{Title: "Total", Width: 8},
		}),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	ti := textinput.New()
	ti.Placeholder = "name | items | total | type"
	ti.CharLimit = 256
	ti.Width = 60

	return Model{
		mainMenu:    mainMenu,
		board:       board,
		spinner:     s,
		textInput:   ti,
		client:      client,
		currentView: "main",
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, scheduleRefresh())
}

// Update handles UI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.mainMenu.SetSize(msg.Width-4, msg.Height-4)
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if model, cmd, handled := m.handleKey(msg); handled {
			return model, cmd
		}
	case tickMsg:
		if m.currentView == "orders" && !m.loading {
			return m, tea.Batch(fetchOrders(m.client, m.currentFilter()), scheduleRefresh())
		}
		return m, scheduleRefresh()
	case ordersMsg:
		m.loading = false
		m.orders = msg.orders
		m.board.SetRows(ordersToRows(msg.orders))
		return m, nil
	case orderMsg:
		m.loading = false
		m.error = ""
		m.message = fmt.Sprintf("Order #%d is now %s", msg.order.ID, msg.order.Status)
		if m.currentView == "order_detail" {
			m.orderDetail = msg.order
		}
		return m, fetchOrders(m.client, m.currentFilter())
	case statsMsg:
		m.loading = false
		m.stats = msg.stats
		m.health = msg.health
		return m, nil
	case errorMsg:
		m.loading = false
		m.error = msg.err
		return m, nil
	case confirmMsg:
		m.loading = false
		m.error = ""
		m.message = msg.message
		if m.currentView == "create_order" {
			m.currentView = "orders"
			m.textInput.Blur()
		}
		return m, fetchOrders(m.client, m.currentFilter())
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	switch m.currentView {
	case "main":
		m.mainMenu, cmd = m.mainMenu.Update(msg)
	case "orders":
		m.board, cmd = m.board.Update(msg)
	case "create_order":
		m.textInput, cmd = m.textInput.Update(msg)
	}
	return m, cmd
}

// handleKey processes the keys each view reacts to. Keys it does not
// handle are passed on to the focused bubble.
func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd, bool) {
	key := msg.String()

	switch m.currentView {
	case "main":
		switch key {
		case "q":
			return m, tea.Quit, true
		case "enter":
			selected, ok := m.mainMenu.SelectedItem().(item)
			if !ok {
				return m, nil, true
			}
			switch selected.title {
			case "Exit":
				return m, tea.Quit, true
			case "Order Board":
				m.currentView = "orders"
				m.loading = true
				return m, fetchOrders(m.client, m.currentFilter()), true
			case "New Order":
				m.currentView = "create_order"
				m.textInput.SetValue("")
				cmd := m.textInput.Focus()
				return m, cmd, true
			case "Statistics":
				m.currentView = "stats"
				m.loading = true
				return m, fetchStats(m.client), true
			}
		}

	case "orders":
		switch key {
		case "esc", "q":
			m.currentView = "main"
			return m, nil, true
		case "r":
			m.loading = true
			return m, fetchOrders(m.client, m.currentFilter()), true
		case "f":
			m.filter = (m.filter + 1) % len(typeFilters)
			m.loading = true
			return m, fetchOrders(m.client, m.currentFilter()), true
		case "n":
			m.currentView = "create_order"
			m.textInput.SetValue("")
			cmd := m.textInput.Focus()
			return m, cmd, true
		case "enter":
			if order, ok := m.selectedOrder(); ok {
				m.orderDetail = order
				m.currentView = "order_detail"
			}
			return m, nil, true
		case "D":
			if order, ok := m.selectedOrder(); ok {
				return m, deleteOrder(m.client, order.ID), true
			}
			return m, nil, true
		}
		if status, ok := statusKeys[key]; ok {
			if order, ok := m.selectedOrder(); ok {
				return m, setStatus(m.client, order.ID, status), true
			}
			return m, nil, true
		}

	case "order_detail":
		switch key {
		case "esc", "q", "enter":
			m.currentView = "orders"
			return m, fetchOrders(m.client, m.currentFilter()), true
		}
		if status, ok := statusKeys[key]; ok {
			return m, setStatus(m.client, m.orderDetail.ID, status), true
		}

	case "create_order":
		switch key {
		case "esc":
			m.currentView = "orders"
			m.textInput.Blur()
			return m, fetchOrders(m.client, m.currentFilter()), true
		case "enter":
			order, err := parseOrderInput(m.textInput.Value())
			if err != nil {
				m.error = err.Error()
				return m, nil, true
			}
			m.loading = true
			return m, createOrder(m.client, order), true
		}

	case "stats":
		switch key {
		case "esc", "q":
			m.currentView = "main"
			return m, nil, true
		case "r":
			m.loading = true
			return m, fetchStats(m.client), true
		}
	}
	return m, nil, false
}

func (m Model) currentFilter() string {
	return typeFilters[m.filter]
}

// selectedOrder resolves the board cursor; rows are kept in m.orders order
func (m Model) selectedOrder() (Order, bool) {
	i := m.board.Cursor()
	if i < 0 || i >= len(m.orders) {
		return Order{}, false
	}
	return m.orders[i], true
}

// View renders the UI
func (m Model) View() string {
	var footer string
	if m.loading {
		footer += m.spinner.View() + " loading\n"
	}
	if m.error != "" {
		footer += errorStyle.Render(m.error) + "\n"
	} else if m.message != "" {
		footer += successStyle.Render(m.message) + "\n"
	}

	switch m.currentView {
	case "main":
		return docStyle.Render(m.mainMenu.View())
	case "orders":
		filter := "all"
		if f := m.currentFilter(); f != "" {
			filter = f
		}
		help := "\n[p]reparing  read[y]  [d]elivered  [x] cancel  [D]elete  [f]ilter  [n]ew  [r]efresh  [esc] back\n"
		return docStyle.Render(titleStyle.Render("Order Board") + " " + infoStyle.Render("type: "+filter) +
			"\n\n" + m.board.View() + help + footer)
	case "order_detail":
		return docStyle.Render(orderDetailView(m.orderDetail) + "\n" + footer)
	case "create_order":
		help := "\nFormat: name | items | total | type (dine_in, car_pickup, delivery)\nPress 'enter' to save, 'esc' to cancel\n"
		return docStyle.Render(titleStyle.Render("New Order") + "\n\n" + m.textInput.View() + help + footer)
	case "stats":
		return docStyle.Render(statsView(m.stats, m.health) + "\n" + footer)
	default:
		return "Loading..."
	}
}

// Custom message types for the tea.Model
type ordersMsg struct {
	orders []Order
}

type orderMsg struct {
	order Order
}

type statsMsg struct {
	stats  *Stats
	health *Health
}

type errorMsg struct {
	err string
}

type confirmMsg struct {
	message string
}

type tickMsg time.Time

func scheduleRefresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// fetchOrders retrieves orders from the API
func fetchOrders(client *ApiClient, orderType string) tea.Cmd {
	return func() tea.Msg {
		orders, err := client.GetOrders(orderType)
		if err != nil {
			return errorMsg{err: fmt.Sprintf("Error fetching orders: %v", err)}
		}
		return ordersMsg{orders: orders}
	}
}

// setStatus moves an order through its lifecycle
func setStatus(client *ApiClient, id int64, status string) tea.Cmd {
	return func() tea.Msg {
		order, err := client.SetStatus(id, status)
		if err != nil {
			return errorMsg{err: fmt.Sprintf("Error updating order #%d: %v", id, err)}
		}
		return orderMsg{order: *order}
	}
}

// deleteOrder removes an order
func deleteOrder(client *ApiClient, id int64) tea.Cmd {
	return func() tea.Msg {
		if err := client.DeleteOrder(id); err != nil {
			return errorMsg{err: fmt.Sprintf("Error deleting order #%d: %v", id, err)}
		}
		return confirmMsg{message: fmt.Sprintf("Order #%d deleted", id)}
	}
}

// createOrder sends a new order to the API
func createOrder(client *ApiClient, order ManualOrder) tea.Cmd {
	return func() tea.Msg {
		created, err := client.CreateOrder(order)
		if err != nil {
			return errorMsg{err: fmt.Sprintf("Error creating order: %v", err)}
		}
		return confirmMsg{message: fmt.Sprintf("Order #%d created", created.ID)}
	}
}

// fetchStats loads the statistics and health views together
func fetchStats(client *ApiClient) tea.Cmd {
	return func() tea.Msg {
		stats, err := client.GetStats()
		if err != nil {
			return errorMsg{err: fmt.Sprintf("Error fetching stats: %v", err)}
		}
		health, err := client.CheckHealth()
		if err != nil {
			return errorMsg{err: fmt.Sprintf("Error checking health: %v", err)}
		}
		return statsMsg{stats: stats, health: health}
	}
}

// parseOrderInput reads "name | items | total | type"; total and type
// may be left out
func parseOrderInput(input string) (ManualOrder, error) {
	parts := strings.Split(input, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return ManualOrder{}, errors.New("customer name and items are required")
	}

	order := ManualOrder{CustomerName: parts[0], Items: parts[1]}
	if len(parts) > 2 && parts[2] != "" {
		total, err := strconv.ParseFloat(parts[2], 64)
		if err != nil || total < 0 {
			return ManualOrder{}, fmt.Errorf("invalid total %q", parts[2])
		}
		order.Total = total
	}
	if len(parts) > 3 && parts[3] != "" {
		order.OrderType = parts[3]
	}
	return order, nil
}

// ordersToRows converts API orders to board rows
func ordersToRows(orders []Order) []table.Row {
	rows := make([]table.Row, len(orders))
	for i, o := range orders {
		rows[i] = table.Row{
			fmt.Sprintf("#%d", o.ID),
			o.CustomerName,
			truncate(o.Items, 30),
			o.OrderType,
			o.Status,
			fmt.Sprintf("%.2f", o.Total),
		}
	}
	return rows
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// orderDetailView creates a detailed view of an order
func orderDetailView(order Order) string {
	view := titleStyle.Render(fmt.Sprintf("Order #%d", order.ID)) + "\n\n"
	view += fmt.Sprintf("Customer: %s\n", order.CustomerName)
	if order.Phone != "" {
		view += fmt.Sprintf("Phone: %s\n", order.Phone)
	}
	view += fmt.Sprintf("Items: %s\n", order.Items)
	view += fmt.Sprintf("Total: %.2f\n", order.Total)
	view += fmt.Sprintf("Type: %s (%s)\n", order.OrderType, order.Location)
	switch order.OrderType {
	case "car_pickup":
		view += fmt.Sprintf("Car: %s\n", order.CarInfo)
	case "delivery":
		view += fmt.Sprintf("Address: %s\n", order.Address)
		if order.DeliveryNotes != "" {
			view += fmt.Sprintf("Delivery notes: %s\n", order.DeliveryNotes)
		}
	}
	view += fmt.Sprintf("Status: %s\n", order.Status)
	view += fmt.Sprintf("Source: %s\n", order.Source)
	view += fmt.Sprintf("Received: %s\n", order.CreatedAt.Local().Format(time.RFC1123))
	if order.Notes != "" {
		view += fmt.Sprintf("Notes: %s\n", order.Notes)
	}
	if n := order.ReadyNotification; n != nil && n.Sent {
		view += fmt.Sprintf("Ready at: %s\n", n.Timestamp.Local().Format(time.Kitchen))
	}

	view += "\n[p]reparing  read[y]  [d]elivered  [x] cancel  [esc] back"
	return view
}

// statsView renders the statistics screen
func statsView(stats *Stats, health *Health) string {
	view := titleStyle.Render("Statistics") + "\n\n"
	if stats == nil {
		return view + "No data yet\n"
	}
	view += fmt.Sprintf("Orders stored: %d\n", stats.Total)
	view += fmt.Sprintf("Orders today: %d\n", stats.Today)
	view += fmt.Sprintf("Revenue today: %.2f\n\n", stats.TodayRevenue)

	view += infoStyle.Render("By status") + "\n"
	view += countLines(stats.ByStatus)
	view += "\n" + infoStyle.Render("By type") + "\n"
	view += countLines(stats.ByType)

	if health != nil {
		view += fmt.Sprintf("\n%s v%s - database %s - up %s\n",
			health.Server, health.Version, health.Database, time.Duration(health.UptimeSeconds)*time.Second)
	}
	view += "\n[r]efresh  [esc] back"
	return view
}

func countLines(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "• %-12s %d\n", k, counts[k])
	}
	return b.String()
}

func main() {
	p := tea.NewProgram(initialModel(NewApiClient()), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running program: %v", err)
		os.Exit(1)
	}
}
