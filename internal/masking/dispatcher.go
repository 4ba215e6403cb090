package masking

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/raaihank/consolemask/internal/dom"
	"github.com/raaihank/consolemask/internal/logger"
)

// Command is one of the two operations a client can request.
type Command string

const (
	CommandApply  Command = "apply"
	CommandRemove Command = "remove"
)

// ErrUnknownCommand is returned by ParseCommand for anything but apply/remove.
var ErrUnknownCommand = errors.New("unknown command")

// ParseCommand accepts the short names and the applyMasking/removeMasking
// action names browser clients send.
func ParseCommand(action string) (Command, error) {
	switch action {
	case "apply", "applyMasking":
		return CommandApply, nil
	case "remove", "removeMasking":
		return CommandRemove, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, action)
	}
}

// Ack is the completion acknowledgment returned to the caller.
type Ack struct {
	Success    bool     `json:"success"`
	Command    Command  `json:"command"`
	DocumentID string   `json:"document_id,omitempty"`
	Outcome    *Outcome `json:"outcome,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// EventSink receives a notification after every settled command.
type EventSink interface {
	Publish(ack Ack)
}

// Dispatcher routes commands to the service.
type Dispatcher struct {
	service *Service
	sink    EventSink
	logger  *logger.Logger
}

// NewDispatcher creates a dispatcher. sink may be nil.
func NewDispatcher(service *Service, sink EventSink, log *logger.Logger) *Dispatcher {
	return &Dispatcher{service: service, sink: sink, logger: log}
}

// Dispatch runs cmd against doc and reports success once it settles. Frames
// that could not be reached do not make the command fail.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command, documentID string, doc *dom.Document) Ack {
	var (
		outcome *Outcome
		err     error
	)

	switch cmd {
	case CommandApply:
		outcome, err = d.service.ApplyMasking(ctx, doc)
	case CommandRemove:
		outcome, err = d.service.RemoveMasking(ctx, doc)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}

	ack := Ack{Success: err == nil, Command: cmd, DocumentID: documentID, Outcome: outcome}
	if err != nil {
		ack.Error = err.Error()
		d.logger.Error("Command failed",
			zap.String("command", string(cmd)),
			zap.String("document_id", documentID),
			zap.Error(err),
		)
	}

	if d.sink != nil {
		d.sink.Publish(ack)
	}
	return ack
}
