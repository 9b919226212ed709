package shell

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pingsantohq/slotwatch/pkg/types"
)

// ErrBack is returned when the operator enters the back key at a prompt.
var ErrBack = errors.New("operator went back")

const clientPrompt = "Open the console and press enter to continue..."

// LineReader yields operator input one line at a time.
type LineReader interface {
	ReadLine(ctx context.Context) (string, error)
}

// Menu runs the numbered selection prompts.
type Menu struct {
	printer *Printer
	input   LineReader
	backKey string
}

func NewMenu(p *Printer, input LineReader, backKey string) *Menu {
	if backKey == "" {
		backKey = "r"
	}
	return &Menu{printer: p, input: input, backKey: backKey}
}

// SelectEndpoint asks for one of endpoints and returns it.
func (m *Menu) SelectEndpoint(ctx context.Context, endpoints []string) (string, error) {
	if len(endpoints) == 0 {
		return "", errors.New("no directory endpoints configured")
	}
	for {
		m.printer.Plain("Select the API URL:")
		for i, url := range endpoints {
			m.printer.Plain(fmt.Sprintf("%d. %s", i+1, url))
		}
		m.printer.Prompt("", "Enter the number of the server API you want to use: ")

		idx, err := m.choose(ctx, len(endpoints), "❗ Invalid input. Please enter a number.")
		if err != nil {
			return "", err
		}
		if idx >= 0 {
			return endpoints[idx], nil
		}
		m.printer.Blank()
	}
}

// SelectServer asks for one of servers and returns it.
func (m *Menu) SelectServer(ctx context.Context, servers []types.ServerRecord) (types.ServerRecord, error) {
	if len(servers) == 0 {
		return types.ServerRecord{}, errors.New("no servers to choose from")
	}
	for {
		m.printer.Prompt(Yellow, "Enter the number of the server you want to connect to: ")
		idx, err := m.choose(ctx, len(servers), fmt.Sprintf("❗ Invalid input. Please enter a number or '%s'.", m.backKey))
		if err != nil {
			return types.ServerRecord{}, err
		}
		if idx >= 0 {
			return servers[idx], nil
		}
	}
}

// AwaitClient waits for the operator to confirm the game client is open.
func (m *Menu) AwaitClient(ctx context.Context) error {
	m.printer.Prompt("", clientPrompt)
	line, err := m.input.ReadLine(ctx)
	if err != nil {
		return err
	}
	if strings.EqualFold(line, m.backKey) {
		return ErrBack
	}
	return nil
}

// choose reads one answer. It returns a zero-based index, or -1 after
// reporting invalid input.
func (m *Menu) choose(ctx context.Context, n int, notNumber string) (int, error) {
	line, err := m.input.ReadLine(ctx)
	if err != nil {
		return -1, err
	}
	if strings.EqualFold(line, m.backKey) {
		return -1, ErrBack
	}
	choice, err := strconv.Atoi(line)
	if err != nil {
		m.printer.Line(Red, notNumber)
		return -1, nil
	}
	if choice < 1 || choice > n {
		m.printer.Line(Red, "❗ Invalid choice. Please enter a valid number.")
		return -1, nil
	}
	return choice - 1, nil
}
