package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nazeru/escrow-fulfillment-go/internal/chain"
	"github.com/nazeru/escrow-fulfillment-go/internal/courierclient"
	"github.com/nazeru/escrow-fulfillment-go/internal/order/view"
)

type courierAPI interface {
	Undelivered(ctx context.Context) ([]view.Undelivered, error)
	PickUp(ctx context.Context, orderID int64, address string) error
}

type model struct {
	api      courierAPI
	address  string
	orders   []view.Undelivered
	selected int
	status   string
	busy     bool
}

type ordersLoaded struct {
	orders []view.Undelivered
	err    error
}

type pickedUp struct {
	id  int64
	err error
}

func initialModel(api courierAPI, address string) model {
	return model{api: api, address: address, status: "Loading...", busy: true}
}

func (m model) Init() tea.Cmd {
	return loadCmd(m.api)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up":
			if m.selected > 0 {
				m.selected--
			}
		case "down":
			if m.selected < len(m.orders)-1 {
				m.selected++
			}
		case "r":
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "Loading..."
			return m, loadCmd(m.api)
		case "enter":
			if m.busy || len(m.orders) == 0 {
				return m, nil
			}
			m.busy = true
			id := m.orders[m.selected].ID
			m.status = fmt.Sprintf("Picking up order %d, waiting for confirmation...", id)
			return m, pickUpCmd(m.api, id, m.address)
		}
	case ordersLoaded:
		m.busy = false
		if msg.err != nil {
			m.status = fmt.Sprintf("Load failed: %v", msg.err)
			return m, nil
		}
		m.orders = msg.orders
		if m.selected >= len(m.orders) {
			m.selected = max(len(m.orders)-1, 0)
		}
		m.status = fmt.Sprintf("%d orders waiting for a courier", len(m.orders))
	case pickedUp:
		if msg.err != nil {
			m.busy = false
			m.status = fmt.Sprintf("Pick-up of order %d failed: %v", msg.id, msg.err)
			return m, nil
		}
		m.status = fmt.Sprintf("Order %d picked up", msg.id)
		return m, loadCmd(m.api)
	}
	return m, nil
}

func (m model) View() string {
	b := &strings.Builder{}
	fmt.Fprintln(b, "escrow courier console")
	fmt.Fprintf(b, "Courier address: %s\n\n", m.address)
	if len(m.orders) == 0 {
		fmt.Fprintln(b, " (no undelivered orders)")
	}
	for i, o := range m.orders {
		marker := " "
		if i == m.selected {
			marker = ">"
		}
		fmt.Fprintf(b, " %s #%d  %s\n", marker, o.ID, o.Email)
	}
	fmt.Fprintln(b, "")
	fmt.Fprintf(b, "Status: %s\n", m.status)
	fmt.Fprintln(b, "\nControls: up/down select, enter to pick up, r to refresh, q to quit")
	return b.String()
}

func loadCmd(api courierAPI) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		orders, err := api.Undelivered(ctx)
		return ordersLoaded{orders: orders, err: err}
	}
}

func pickUpCmd(api courierAPI, id int64, address string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()
		return pickedUp{id: id, err: api.PickUp(ctx, id, address)}
	}
}

func main() {
	baseURL := flag.String("url", getenv("COURIER_BASE_URL", "http://localhost:8081"), "courier service base URL")
	email := flag.String("email", getenv("COURIER_EMAIL", ""), "courier account email")
	address := flag.String("address", getenv("COURIER_ADDRESS", ""), "courier ledger address paid on delivery")
	pickUp := flag.String("pick-up", "", "pick up this order id and exit")
	flag.Parse()

	if *email == "" || !chain.IsAddress(*address) {
		fmt.Fprintln(os.Stderr, "error: -email and a valid -address are required")
		os.Exit(2)
	}
	api := courierclient.New(*baseURL, *email)

	if *pickUp != "" {
		id, err := strconv.ParseInt(*pickUp, 10, 64)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error: invalid order id")
			os.Exit(2)
		}
		res := pickUpCmd(api, id, *address)().(pickedUp)
		if res.err != nil {
			fmt.Println("error:", res.err)
			os.Exit(1)
		}
		fmt.Printf("Order %d picked up\n", id)
		return
	}

	p := tea.NewProgram(initialModel(api, *address))
	if _, err := p.Run(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
