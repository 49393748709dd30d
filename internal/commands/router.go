// internal/commands/router.go
package commands

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/whale-tracker/internal/domain"
	"github.com/rovshanmuradov/whale-tracker/internal/logger"
)

// Request is one inbound message.
type Request struct {
	ChatID    int64
	Username  string
	FirstName string
	Text      string
}

// Sender returns the subscriber the request came from.
func (r Request) Sender() domain.Subscriber {
	return domain.Subscriber{ID: r.ChatID, Username: r.Username, FirstName: r.FirstName}
}

// Handler executes one kind of command and returns the reply text.
type Handler interface {
	Handle(ctx context.Context, req Request, cmd Command) (string, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req Request, cmd Command) (string, error)

func (f HandlerFunc) Handle(ctx context.Context, req Request, cmd Command) (string, error) {
	return f(ctx, req, cmd)
}

// SenderRegistry registers whoever talks to the bot.
type SenderRegistry interface {
	Register(id int64, username, firstName string) (domain.Subscriber, bool, error)
}

// Router parses text, registers the sender and dispatches by command name.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	senders  SenderRegistry
	logger   *zap.Logger
}

func NewRouter(senders SenderRegistry, logger *zap.Logger) *Router {
	return &Router{
		handlers: make(map[string]Handler),
		senders:  senders,
		logger:   logger.Named("commands"),
	}
}

// Register binds a handler to a command name, replacing any previous one.
func (r *Router) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[name] = h
	r.logger.Debug("Command handler registered", zap.String("command", name))
}

// Handle processes one request and always returns a reply.
func (r *Router) Handle(ctx context.Context, req Request) string {
	if r.senders != nil {
		if _, created, err := r.senders.Register(req.ChatID, req.Username, req.FirstName); err != nil {
			r.logger.Error("Failed to register sender", zap.Int64("chat_id", req.ChatID), zap.Error(err))
		} else if created {
			r.logger.Info("New subscriber", zap.String("name", req.Sender().DisplayName()))
		}
	}

	cmd, err := Parse(req.Text)
	if err != nil {
		switch {
		case errors.Is(err, ErrUsage):
			return "📋 Usage: " + usageOf(err)
		default:
			return "❓ Unknown command. Send /help for the list of commands."
		}
	}

	log := logger.WithOperation(r.logger, cmd.Name()).With(zap.Int64("chat_id", req.ChatID))

	if err := cmd.Validate(); err != nil {
		log.Info("Command rejected", zap.Error(err))
		return ReplyError(err)
	}

	r.mu.RLock()
	h, ok := r.handlers[cmd.Name()]
	r.mu.RUnlock()
	if !ok {
		log.Error("No handler for command")
		return "❌ This command is not available right now."
	}

	reply, err := h.Handle(ctx, req, cmd)
	if err != nil {
		log.Warn("Command failed", zap.Error(err))
		return ReplyError(err)
	}

	log.Info("Command executed")
	return reply
}

func usageOf(err error) string {
	return strings.TrimPrefix(err.Error(), ErrUsage.Error()+": ")
}
