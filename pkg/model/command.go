package model

import (
	"context"
	"errors"
	"fmt"
)

// Command errors.
var (
	ErrCommandNotFound   = errors.New("command not found")
	ErrInvalidParameters = errors.New("invalid command parameters")
)

// CommandHandler is the function signature for command handlers.
// The parameters map contains command-specific parameters.
// Returns a result map (may be nil) or an error.
type CommandHandler func(ctx context.Context, params map[string]any) (map[string]any, error)

// CommandMetadata describes a command's properties.
type CommandMetadata struct {
	// Name identifies the command within its component, e.g. "reset".
	Name        string
	Description string
	Parameters  []ParameterMetadata
}

// ParameterMetadata describes a command parameter.
type ParameterMetadata struct {
	Name     string
	Type     DataType
	Required bool
}

// Command represents a command instance with its handler.
type Command struct {
	metadata *CommandMetadata
	handler  CommandHandler
}

// NewCommand creates a new command with the given metadata and handler.
func NewCommand(meta *CommandMetadata, handler CommandHandler) *Command {
	return &Command{
		metadata: meta,
		handler:  handler,
	}
}

// Name returns the command name.
func (c *Command) Name() string {
	return c.metadata.Name
}

// Metadata returns the command metadata.
func (c *Command) Metadata() *CommandMetadata {
	return c.metadata
}

// Invoke executes the command with the given parameters.
func (c *Command) Invoke(ctx context.Context, params map[string]any) (map[string]any, error) {
	if err := c.validateParameters(params); err != nil {
		return nil, err
	}
	if c.handler == nil {
		return nil, ErrCommandNotFound
	}
	return c.handler(ctx, params)
}

// validateParameters checks required parameters and their types.
func (c *Command) validateParameters(params map[string]any) error {
	for _, p := range c.metadata.Parameters {
		v, exists := params[p.Name]
		if !exists {
			if p.Required {
				return fmt.Errorf("%w: missing %s", ErrInvalidParameters, p.Name)
			}
			continue
		}
		ok := true
		switch p.Type {
		case DataTypeBool:
			_, ok = v.(bool)
		case DataTypeString, DataTypeEnum:
			_, ok = v.(string)
		case DataTypeInt, DataTypeFloat:
			ok = isNumericType(v)
		}
		if !ok {
			return fmt.Errorf("%w: %s must be %s", ErrInvalidParameters, p.Name, p.Type)
		}
	}
	return nil
}

// SetHandler sets or replaces the command handler.
func (c *Command) SetHandler(handler CommandHandler) {
	c.handler = handler
}
