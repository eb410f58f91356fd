package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/rahul/patternlab/internal/fault"
	"github.com/rahul/patternlab/internal/observability"
	"github.com/rahul/patternlab/internal/rag"
)

// telegramMessageLimit is the longest text a single message may carry.
const telegramMessageLimit = 4096

// Command selects which engine handles a chat message.
type Command string

const (
	CommandAgent Command = "agent"
	CommandAsk   Command = "ask"
	CommandRAG   Command = "rag"
	CommandTools Command = "tools"
)

const helpText = "Send a question to use the tools, or:\n/agent <task> plan and execute a task\n/ask <prompt> answer directly\n/rag <question> ask the uploaded documents\n/tools <prompt> answer with the calculator, weather and search tools"

// botAPI is the part of *tgbotapi.BotAPI the gateway uses.
type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	StopReceivingUpdates()
}

type TelegramGateway struct {
	Bot      botAPI
	Services Services
	Logger   *observability.Logger
}

var _ Messenger = (*TelegramGateway)(nil)

func NewTelegramGateway(token string, services Services, logger *observability.Logger) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	logger.Slog().Info("telegram authorized", "account", bot.Self.UserName)

	return &TelegramGateway{
		Bot:      bot,
		Services: services,
		Logger:   logger,
	}, nil
}

// route splits a message into its command and argument. Messages without a
// known command go to the tool loop unchanged.
func route(text string) (Command, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return CommandTools, text
	}
	head, rest, _ := strings.Cut(text, " ")
	// Group chats address commands as /cmd@botname.
	head, _, _ = strings.Cut(strings.TrimPrefix(head, "/"), "@")
	rest = strings.TrimSpace(rest)

	switch Command(strings.ToLower(head)) {
	case CommandAgent:
		return CommandAgent, rest
	case CommandAsk:
		return CommandAsk, rest
	case CommandRAG:
		return CommandRAG, rest
	case CommandTools:
		return CommandTools, rest
	}
	return "", text
}

// reply runs the engine text is routed to and formats its answer.
func (tg *TelegramGateway) reply(ctx context.Context, text string) string {
	cmd, arg := route(text)
	if cmd == "" || (arg == "" && cmd != CommandTools) {
		return helpText
	}

	var (
		out string
		err error
	)
	switch cmd {
	case CommandAgent:
		res, runErr := tg.Services.Agent.Run(ctx, arg)
		if runErr == nil {
			var b strings.Builder
			for i, step := range res.Steps {
				fmt.Fprintf(&b, "%d. %s\n", i+1, step.Action)
			}
			b.WriteString("\n")
			b.WriteString(res.Result)
			out = b.String()
		}
		err = runErr
	case CommandAsk:
		out, err = tg.Services.Assistant.Respond(ctx, arg)
	case CommandRAG:
		if tg.Services.RAG == nil {
			return "Document search is not configured."
		}
		out, err = tg.Services.RAG.Query(ctx, arg)
		if err != nil {
			tg.Logger.LogError(observability.TaskID(ctx), "telegram", err)
			return rag.SafeMessage(err)
		}
	case CommandTools:
		if arg == "" {
			return helpText
		}
		res, runErr := tg.Services.Tools.Run(ctx, arg)
		if runErr == nil {
			out = res.Response
		}
		err = runErr
	}

	if err != nil {
		tg.Logger.LogError(observability.TaskID(ctx), "telegram", err)
		return "Sorry, I could not complete that: " + fault.Message(err)
	}
	if strings.TrimSpace(out) == "" {
		return "I have no answer for that."
	}
	return out
}

// Start polls for updates and answers each message in turn until ctx is
// done or Stop closes the update channel.
func (tg *TelegramGateway) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}

			user := ""
			if update.Message.From != nil {
				user = update.Message.From.UserName
			}
			taskID := uuid.NewString()
			tg.Logger.Slog().Info("telegram message", "user", user, "chat_id", update.Message.Chat.ID, "task_id", taskID)

			response := tg.reply(observability.WithTaskID(ctx, taskID), update.Message.Text)
			if err := tg.Send(strconv.FormatInt(update.Message.Chat.ID, 10), response); err != nil {
				tg.Logger.Slog().Error("telegram send failed", slog.Any("error", err))
			}
		}
	}
}

// Send delivers text to chatID, split into as many messages as needed.
func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	for _, part := range splitMessage(text, telegramMessageLimit) {
		if _, err := tg.Bot.Send(tgbotapi.NewMessage(id, part)); err != nil {
			return err
		}
	}
	return nil
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}

// splitMessage cuts text into pieces of at most limit runes, preferring line
// breaks.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
