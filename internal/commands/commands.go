// internal/commands/commands.go
package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rovshanmuradov/whale-tracker/internal/domain"
)

const (
	NameAdd    = "add"
	NameRemove = "remove"
	NameList   = "list"
	NameCheck  = "check"
	NameHelp   = "help"
	NameStart  = "start"
)

var (
	ErrEmpty          = errors.New("empty command")
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("missing argument")
)

// Command is a parsed, transport-independent request.
type Command interface {
	Name() string
	Validate() error
}

// AddCommand starts tracking Address. An empty Label asks for an alias.
type AddCommand struct {
	Address string
	Label   string
}

func (c AddCommand) Name() string { return NameAdd }

func (c AddCommand) Validate() error {
	return domain.ValidateAddress(c.Address)
}

type RemoveCommand struct {
	Address string
}

func (c RemoveCommand) Name() string { return NameRemove }

func (c RemoveCommand) Validate() error {
	return domain.ValidateAddress(c.Address)
}

type ListCommand struct{}

func (ListCommand) Name() string    { return NameList }
func (ListCommand) Validate() error { return nil }

// CheckCommand asks for the live positions of Address without touching
// the tracked state.
type CheckCommand struct {
	Address string
}

func (c CheckCommand) Name() string { return NameCheck }

func (c CheckCommand) Validate() error {
	return domain.ValidateAddress(c.Address)
}

type HelpCommand struct{}

func (HelpCommand) Name() string    { return NameHelp }
func (HelpCommand) Validate() error { return nil }

type StartCommand struct{}

func (StartCommand) Name() string    { return NameStart }
func (StartCommand) Validate() error { return nil }

// Parse reads "add 0x...:label", "/add@somebot 0x...", "list" and so on.
// Validation of arguments is left to Command.Validate.
func Parse(text string) (Command, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "/")
	if text == "" {
		return nil, ErrEmpty
	}

	name, args, _ := strings.Cut(text, " ")
	name, _, _ = strings.Cut(name, "@")
	name = strings.ToLower(name)
	args = strings.TrimSpace(args)

	switch name {
	case NameAdd:
		if args == "" {
			return nil, fmt.Errorf("%w: add <address>[:<label>]", ErrUsage)
		}
		address, label, _ := strings.Cut(args, ":")
		return AddCommand{Address: strings.TrimSpace(address), Label: strings.TrimSpace(label)}, nil
	case NameRemove:
		if args == "" {
			return nil, fmt.Errorf("%w: remove <address>", ErrUsage)
		}
		return RemoveCommand{Address: firstField(args)}, nil
	case NameCheck:
		if args == "" {
			return nil, fmt.Errorf("%w: check <address>", ErrUsage)
		}
		return CheckCommand{Address: firstField(args)}, nil
	case NameList:
		return ListCommand{}, nil
	case NameHelp:
		return HelpCommand{}, nil
	case NameStart:
		return StartCommand{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
}

func firstField(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}
