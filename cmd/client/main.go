package main

import (
	"bufio"
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/infrastructure/rest"
	"chat-relay/infrastructure/ws"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress  string `env:"CHAT_SERVER_ADDR,default=localhost:8080"`
	ConversationID string `env:"CHAT_CONVERSATION_ID,required=true"`
	UserID         string `env:"CHAT_USER_ID,default=anonymous"`
	// JWTSecret mints a local token, for development servers only
	JWTSecret      string `env:"CHAT_JWT_SECRET"`
	Colours        bool   `env:"CHAT_COLOURS,default=true"`
	LogLevel       string `env:"LOG_LEVEL,default=INFO"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// 1. Load configuration from environment variables.
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)
	color.Enable = config.Colours

	var token string
	if config.JWTSecret != "" {
		var err error
		token, err = auth.NewTokenManager(config.JWTSecret).GenerateToken(config.UserID, nil, time.Hour)
		if err != nil {
			return exitConfig, fmt.Errorf("unable to mint token: %w", err)
		}
	}

	// 2. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open the session.
	endpoint := url.URL{Scheme: "ws", Host: config.ServerAddress, Path: "/ws/" + config.ConversationID}
	if token != "" {
		endpoint.RawQuery = url.Values{"token": {token}}.Encode()
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint.String(), nil)
	if err != nil {
		if resp != nil {
			return exitRuntime, fmt.Errorf("could not join %s: %s", config.ConversationID, resp.Status)
		}
		return exitRuntime, fmt.Errorf("could not connect to server at %s: %w", config.ServerAddress, err)
	}
	defer func() {
		log.Debug("Closing connection...")
		_ = conn.Close()
	}()

	color.Info.Printf(">>> Joined %s as %s (/history, /delete <id>, Ctrl+C to quit)\n", config.ConversationID, config.UserID)

	// 4. Reception loop.
	closed := make(chan error, 1)
	go func() {
		for {
			var envelope ws.OutboundEnvelope
			if err := conn.ReadJSON(&envelope); err != nil {
				closed <- err
				return
			}
			printEnvelope(envelope)
		}
	}()

	// 5. Input loop, stdin lines become send or delete envelopes.
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	client := &http.Client{Timeout: 10 * time.Second}
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
			return exitOK, nil
		case err := <-closed:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				color.Warn.Println("Server closed the session")
				return exitOK, nil
			}
			return exitRuntime, fmt.Errorf("session error: %w", err)
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			if err := handleLine(ctx, log, conn, client, config, token, strings.TrimSpace(line)); err != nil {
				return exitRuntime, err
			}
		}
	}
}

func handleLine(ctx context.Context, log *slog.Logger, conn *websocket.Conn, client *http.Client, config Config, token, line string) error {
	switch {
	case line == "":
		return nil
	case line == "/history":
		if err := printHistory(ctx, client, config, token); err != nil {
			log.Warn("History unavailable", "error", err)
		}
		return nil
	case strings.HasPrefix(line, "/delete "):
		return conn.WriteJSON(ws.InboundEnvelope{
			Action:    string(domain.ActionDelete),
			MessageID: strings.TrimSpace(strings.TrimPrefix(line, "/delete ")),
		})
	}
	return conn.WriteJSON(ws.InboundEnvelope{
		Action:   string(domain.ActionSend),
		SenderID: config.UserID,
		Content:  line,
		Type:     string(domain.TextMessage),
	})
}

func printEnvelope(envelope ws.OutboundEnvelope) {
	switch {
	case envelope.Error != "":
		color.Error.Printf("✗ %s failed: %s %s\n", envelope.Action, envelope.Error, envelope.MessageID)
	case envelope.Action == domain.ActionDelete:
		color.Gray.Printf("- %s deleted\n", envelope.MessageID)
	default:
		at := ""
		if envelope.CreatedAt != nil {
			at = envelope.CreatedAt.Local().Format(time.TimeOnly)
		}
		content := envelope.Content
		if envelope.FileURL != "" {
			content = fmt.Sprintf("[%s] %s %s", envelope.Type, envelope.FileURL, content)
		}
		fmt.Printf("%s %s: %s %s\n",
			color.Gray.Render(at),
			color.New(color.FgGreen, color.OpBold).Render(envelope.SenderID),
			content,
			color.Gray.Render(envelope.ID))
	}
}

func printHistory(ctx context.Context, client *http.Client, config Config, token string) error {
	endpoint := url.URL{Scheme: "http", Host: config.ServerAddress, Path: "/conversations/" + config.ConversationID + "/messages"}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return err
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(request)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	var page rest.MessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "Sender", "Type", "Content", "ID"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, m := range page.Messages {
		content := m.Content
		if m.FileURL != "" {
			content = strings.TrimSpace(m.FileURL + " " + content)
		}
		table.Append([]string{m.CreatedAt.Local().Format(time.DateTime), m.SenderID, m.Type, content, m.ID})
	}
	table.Render()
	if page.NextCursor != nil {
		color.Gray.Println("(more messages available)")
	}
	return nil
}
