// Command client is a small terminal chat client, handy for poking at a
// running server without a browser. It joins one room, prints everything
// the room broadcasts, and sends each typed line as a chat message.
//
// Slash commands: /history prints the stored conversation, /quit leaves.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"chat-relay/domain"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"
)

type Config struct {
	ServerURL string `envconfig:"SERVER_URL" default:"http://localhost:8080"`
	Room      string `envconfig:"ROOM" required:"true"`
	Username  string `envconfig:"USERNAME" required:"true"`
	// TOKEN is optional on permissive deployments.
	Token   string `envconfig:"TOKEN"`
	Colours bool   `envconfig:"COLOURS" default:"true"`
}

type inboundEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Sender  string `json:"sender"`
	Typing  bool   `json:"typing"`
	Reader  string `json:"reader"`
	User    string `json:"user"`
	Status  string `json:"status"`
	Error   string `json:"error"`
}

type historyMessage struct {
	Sender  string    `json:"sender"`
	Content string    `json:"content"`
	Lang    string    `json:"lang"`
	At      time.Time `json:"at"`
}

func main() {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}
	if _, err := domain.ParseRoomKey(cfg.Room); err != nil {
		fmt.Fprintf(os.Stderr, "invalid room %q: %v\n", cfg.Room, err)
		os.Exit(2)
	}

	wsURL := strings.Replace(cfg.ServerURL, "http", "ws", 1) +
		"/ws/chat/" + cfg.Room + "?token=" + url.QueryEscape(cfg.Token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Printf("Connected to %s as %s\n", cfg.Room, cfg.Username)

	go receive(conn, cfg)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case line == "/history":
			printHistory(cfg)
		default:
			frame, _ := json.Marshal(map[string]string{
				"message": line,
				"sender":  cfg.Username,
			})
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
				return
			}
		}
	}
}

func receive(conn *websocket.Conn, cfg Config) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			fmt.Println("Connection closed.")
			os.Exit(0)
		}
		var e inboundEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			continue
		}
		fmt.Println(render(e, cfg))
	}
}

func render(e inboundEvent, cfg Config) string {
	paint := func(c color.Color, s string) string {
		if cfg.Colours {
			return c.Render(s)
		}
		return s
	}

	switch {
	case e.Error != "":
		return paint(color.FgRed, "! "+e.Error)
	case e.Type == "typing" && e.Sender != cfg.Username:
		if e.Typing {
			return paint(color.FgGray, e.Sender+" is typing...")
		}
		return paint(color.FgGray, e.Sender+" stopped typing")
	case e.Type == "read_receipt":
		return paint(color.FgGray, e.Reader+" has read the conversation")
	case e.User != "":
		return paint(color.FgYellow, e.User+" is "+e.Status)
	case e.Sender == cfg.Username:
		return paint(color.FgCyan, "you: "+e.Message)
	default:
		return paint(color.FgGreen, e.Sender+": "+e.Message)
	}
}

// printHistory fetches one page of the stored conversation over REST and
// renders it oldest first.
func printHistory(cfg Config) {
	resp, err := http.Get(cfg.ServerURL + "/api/messages?room=" + url.QueryEscape(cfg.Room))
	if err != nil {
		fmt.Fprintf(os.Stderr, "history failed: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var body struct {
		Messages []historyMessage `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		fmt.Fprintf(os.Stderr, "history decode failed: %v\n", err)
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"At", "Sender", "Message", "Lang"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	// The API serves newest first; flip for reading order.
	for i := len(body.Messages) - 1; i >= 0; i-- {
		msg := body.Messages[i]
		table.Append([]string{
			msg.At.Local().Format("15:04:05"),
			msg.Sender,
			msg.Content,
			msg.Lang,
		})
	}
	table.Render()
}
