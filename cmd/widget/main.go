// Command widget is a terminal rendition of the chat widget: it drives the
// conversation engine the way an embedded UI would, printing the transcript
// and reading visitor input from stdin.
package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"chat-widget-engine/internal/engine"
	"chat-widget-engine/internal/env"
	"chat-widget-engine/internal/model"
	"chat-widget-engine/internal/socket"
	"chat-widget-engine/internal/store"
	"chat-widget-engine/internal/transport"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	apiBase := env.GetOrDefault(env.APIBaseURL, "http://localhost:8080")
	socketURL := env.GetOrDefault(env.SocketURL, "ws://localhost:8080/api/v1/ws")
	businessID := env.GetOrDefault(env.BusinessID, "demo-business")
	agentName := env.GetOrDefault(env.AgentName, "Nova")
	statePath := env.GetOrDefault(env.StatePath, "widget-state.db")

	boltStore, err := store.OpenBolt(statePath)
	if err != nil {
		log.Fatalf("open state store: %v", err)
	}
	defer boltStore.Close()

	e, err := engine.New(engine.Config{
		BusinessID: businessID,
		AgentName:  agentName,
		Store:      boltStore,
		Transport:  transport.NewClient(apiBase),
		NewPush: func(h socket.Handler) engine.PushChannel {
			return socket.NewClient(socketURL, h)
		},
	})
	if err != nil {
		log.Fatalf("engine init: %v", err)
	}

	e.Start()
	defer e.Stop()

	go renderUpdates(e)

	e.OpenPanel()
	fmt.Println("Chat widget. Type a message, or /help for commands.")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			e.Typing()
			e.Send(line)
			continue
		}
		if !runCommand(e, line) {
			return
		}
	}
}

// runCommand handles slash commands; returns false to quit.
func runCommand(e *engine.Engine, line string) bool {
	parts := strings.Fields(line)
	switch parts[0] {
	case "/help":
		fmt.Println(`/contact <name> <phone> <email>  start the conversation
/opt <n>     pick option n from the last prompt
/faq <n>     pick FAQ n
/open        open the panel
/close       minimize the panel
/reset       wipe the conversation
/quit        exit`)
	case "/contact":
		if len(parts) < 4 {
			fmt.Println("usage: /contact <name> <phone> <email>")
			return true
		}
		e.SubmitContact(parts[1], parts[2], parts[3])
	case "/opt":
		opt, ok := pickOption(e, parts)
		if !ok {
			return true
		}
		e.SelectOption(opt)
	case "/faq":
		faqs := e.Snapshot().FAQs
		i, err := strconv.Atoi(parts[len(parts)-1])
		if err != nil || i < 1 || i > len(faqs) {
			fmt.Printf("pick a FAQ between 1 and %d\n", len(faqs))
			return true
		}
		e.SelectFAQ(faqs[i-1])
	case "/open":
		e.OpenPanel()
	case "/close":
		e.ClosePanel()
	case "/reset":
		e.Reset()
	case "/quit":
		return false
	default:
		fmt.Printf("unknown command %s\n", parts[0])
	}
	return true
}

func pickOption(e *engine.Engine, parts []string) (model.Option, bool) {
	var options []model.Option
	for _, m := range e.Snapshot().State.Messages {
		if len(m.Options) > 0 {
			options = m.Options
		}
	}
	if len(options) == 0 {
		fmt.Println("no options to pick from")
		return model.Option{}, false
	}
	i, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil || i < 1 || i > len(options) {
		fmt.Printf("pick an option between 1 and %d\n", len(options))
		return model.Option{}, false
	}
	return options[i-1], true
}

func renderUpdates(e *engine.Engine) {
	for u := range e.Updates() {
		switch u.Kind {
		case engine.UpdateState:
			renderState(u.State)
		case engine.UpdateNotice:
			fmt.Printf("  * %s\n", u.Text)
		case engine.UpdateError:
			fmt.Printf("  ! %s\n", u.Text)
			if u.RestoreInput != "" {
				fmt.Printf("  (your message was kept: %q)\n", u.RestoreInput)
			}
		case engine.UpdateTyping:
			if u.Active {
				fmt.Println("  ... agent is typing")
			}
		case engine.UpdateConnection:
			if u.Active {
				fmt.Println("  * connected")
			} else {
				fmt.Println("  * connection lost, falling back to polling")
			}
		case engine.UpdateCollapsed:
			fmt.Println("  * widget minimized")
		case engine.UpdateFAQs:
			for i, faq := range u.FAQs {
				fmt.Printf("  [faq %d] %s\n", i+1, faq.Question)
			}
		}
	}
}

func renderState(s model.ConversationState) {
	if len(s.Messages) == 0 {
		return
	}
	last := s.Messages[len(s.Messages)-1]
	if last.Kind == model.KindLoader {
		fmt.Println("  ... thinking")
		return
	}

	label := string(last.Sender)
	if last.Sender != model.SenderUser && s.CurrentAgentName != "" && s.Status == model.StatusLive {
		label = s.CurrentAgentName
	}
	fmt.Printf("  [%s] %s\n", label, last.Text)
	for i, opt := range last.Options {
		fmt.Printf("    %d) %s\n", i+1, opt.Label)
	}
}
