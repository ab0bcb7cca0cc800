package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/vincenthz/ThinkMate/pkg/ident"
	"github.com/vincenthz/ThinkMate/pkg/llm"
)

const (
	// RecordFormat identifies a persisted conversation record.
	RecordFormat = "thinkmate.conversation"

	// RecordVersion is the record layout version written by Encode.
	RecordVersion = 1
)

var (
	// ErrInvalid is wrapped by every Validate and Decode failure.
	ErrInvalid = errors.New("invalid conversation record")

	validate     *validator.Validate
	validateOnce sync.Once
)

// record is the on-disk envelope. Format and Version make a record
// self-describing so a foreign or truncated file is rejected rather than
// misread.
type record struct {
	Format       string        `json:"format"`
	Version      int           `json:"version"`
	Conversation *Conversation `json:"conversation"`
}

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("ident", func(fl validator.FieldLevel) bool {
			return ident.Valid(fl.Field().String())
		})
		_ = validate.RegisterValidation("role", func(fl validator.FieldLevel) bool {
			return llm.ValidRole(fl.Field().String())
		})
	})
	return validate
}

// Validate checks that c can be persisted: structural field rules, the
// user/assistant alternation, and that only the last message may still be
// in progress.
func Validate(c *Conversation) error {
	if c == nil {
		return fmt.Errorf("%w: nil conversation", ErrInvalid)
	}

	if err := getValidator().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}

		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed on the '%s' tag", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
	}

	seen := make(map[string]struct{}, len(c.Messages))
	for i, m := range c.Messages {
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("%w: duplicate message id %s", ErrInvalid, m.ID)
		}
		seen[m.ID] = struct{}{}

		if i < len(c.Messages)-1 && !m.Status.Terminal() {
			return fmt.Errorf("%w: message %d is %s but is not the last message", ErrInvalid, i, m.Status)
		}
		if i > 0 && m.Role == c.Messages[i-1].Role && m.Role != llm.RoleSystem {
			return fmt.Errorf("%w: consecutive %s messages at %d", ErrInvalid, m.Role, i)
		}
	}
	return nil
}

// Encode validates c and serializes it as a versioned record.
func Encode(c *Conversation) ([]byte, error) {
	if err := Validate(c); err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(record{
		Format:       RecordFormat,
		Version:      RecordVersion,
		Conversation: c,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding conversation %s: %w", c.ID, err)
	}
	return data, nil
}

// Decode parses and validates a record. A trailing message left pending or
// streaming by a process that died mid-turn is normalised to cancelled.
func Decode(data []byte) (*Conversation, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if r.Format != RecordFormat {
		return nil, fmt.Errorf("%w: unexpected format %q", ErrInvalid, r.Format)
	}
	if r.Version != RecordVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalid, r.Version)
	}
	if r.Conversation == nil {
		return nil, fmt.Errorf("%w: missing conversation", ErrInvalid)
	}

	c := r.Conversation
	if err := Validate(c); err != nil {
		return nil, err
	}

	if last := c.Last(); !last.Status.Terminal() {
		last.Status = StatusCancelled
	}
	return c, nil
}
