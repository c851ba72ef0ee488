package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/talemachine/talemachine/internal/agent"
	"github.com/talemachine/talemachine/internal/approval"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/google/shlex"
	"github.com/spf13/cobra"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review pending approval requests",
	Long:  `Interactive reviewer console. Lists tool calls parked at the approval gate on a running server and lets you approve or reject them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
		}

		console := newReviewConsole(addr)
		return console.run()
	},
}

type reviewConsole struct {
	baseURL string
	client  *http.Client
	reader  *bufio.Reader

	headerStyle lipgloss.Style
	rowStyle    lipgloss.Style
	borderStyle lipgloss.Style
}

func newReviewConsole(baseURL string) *reviewConsole {
	purple := lipgloss.Color("99")
	gray := lipgloss.Color("245")

	return &reviewConsole{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 2 * time.Minute},
		reader:  bufio.NewReader(os.Stdin),
		headerStyle: lipgloss.NewStyle().
			Foreground(purple).
			Bold(true).
			Align(lipgloss.Center).
			Padding(0, 1),
		rowStyle: lipgloss.NewStyle().
			Foreground(gray).
			Padding(0, 1),
		borderStyle: lipgloss.NewStyle().
			Foreground(purple),
	}
}

func (c *reviewConsole) run() error {
	fmt.Println("TaleMachine reviewer console:", c.baseURL)
	fmt.Println("Commands: list, show <thread_id>, approve <thread_id> [extra_argument], reject <thread_id>, /exit")

	for {
		fmt.Print("> ")
		text, err := c.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if text == "/exit" {
			return nil
		}

		parts, err := shlex.Split(text)
		if err != nil {
			fmt.Println("parse error:", err)
			continue
		}
		if err := c.dispatch(parts); err != nil {
			if err == io.EOF {
				return nil
			}
			fmt.Println("error:", err)
		}
	}
}

func (c *reviewConsole) dispatch(parts []string) error {
	switch parts[0] {
	case "list":
		return c.list()
	case "show":
		if len(parts) != 2 {
			return fmt.Errorf("usage: show <thread_id>")
		}
		return c.show(parts[1])
	case "approve":
		if len(parts) < 2 || len(parts) > 3 {
			return fmt.Errorf("usage: approve <thread_id> [extra_argument]")
		}
		var extra any
		if len(parts) == 3 {
			extra = parseExtraArgument(parts[2])
		}
		return c.resolve(parts[1], true, extra)
	case "reject":
		if len(parts) != 2 {
			return fmt.Errorf("usage: reject <thread_id>")
		}
		return c.resolve(parts[1], false, nil)
	default:
		return fmt.Errorf("unknown command %q", parts[0])
	}
}

func (c *reviewConsole) list() error {
	var actions []*approval.PendingAction
	if err := c.get("/api/approvals", &actions); err != nil {
		return err
	}

	pending := actions[:0]
	for _, a := range actions {
		if a.Status == approval.StatusAwaitingDecision {
			pending = append(pending, a)
		}
	}
	if len(pending) == 0 {
		fmt.Println("No pending approvals.")
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(c.borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return c.headerStyle
			}
			return c.rowStyle
		}).
		Headers("Thread", "Tool", "Arguments", "Requested")

	for _, a := range pending {
		t.Row(
			a.ThreadID,
			a.ToolName,
			truncateString(string(a.ToolArguments), 48),
			a.CreatedAt.Format(time.RFC3339),
		)
	}
	fmt.Println(t.String())
	return nil
}

func (c *reviewConsole) show(threadID string) error {
	var action approval.PendingAction
	if err := c.get("/api/approvals/"+threadID, &action); err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, action.ToolArguments, "", "  "); err != nil {
		pretty.Write(action.ToolArguments)
	}

	fmt.Printf("Thread:    %s\nTool:      %s\nStatus:    %s\nRequested: %s\nArguments:\n%s\n",
		action.ThreadID, action.ToolName, action.Status,
		action.CreatedAt.Format(time.RFC3339), pretty.String())
	return nil
}

func (c *reviewConsole) resolve(threadID string, approved bool, extra any) error {
	body := map[string]any{"thread_id": threadID, "approved": approved}
	if extra != nil {
		body["extra_argument"] = extra
	}

	var reply agent.Reply
	if err := c.post("/api/messages/resume", body, &reply); err != nil {
		return err
	}

	if reply.Interrupt != nil {
		fmt.Printf("Thread paused again on %s; run 'list' to review.\n", reply.Interrupt.ToolName)
		return nil
	}
	fmt.Println(reply.Content)
	return nil
}

// parseExtraArgument keeps JSON scalars typed so numeric overrides reach
// the tool as numbers, not strings.
func parseExtraArgument(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

func (c *reviewConsole) get(path string, out any) error {
	resp, err := c.client.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func (c *reviewConsole) post(path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.client.Post(c.baseURL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func init() {
	rootCmd.AddCommand(reviewCmd)
	reviewCmd.Flags().String("addr", "", "Base URL of a running talemachine server")
}
