// Package src20 builds and reads SRC-20 token messages, the JSON documents
// that stamp transactions carry in their multisig outputs.
package src20

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// Protocol is the "p" value of every message.
	Protocol = "SRC-20"

	// Prefix marks stamp text on chain.
	Prefix = "stamp:"

	// MaxTickLength is the longest tick in runes.
	MaxTickLength = 5

	// DefaultDecimals is used by Deploy when Dec is nil.
	DefaultDecimals = 18

	// MaxDecimals is the largest accepted dec value. The smallest is 1.
	MaxDecimals = 18
)

// Operations.
const (
	OpDeploy   = "DEPLOY"
	OpMint     = "MINT"
	OpTransfer = "TRANSFER"
)

var decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// Message is a decoded SRC-20 document. Field order matches the order the
// minting service writes.
type Message struct {
	Op   string `json:"op"`
	P    string `json:"p"`
	Tick string `json:"tick"`
	Max  string `json:"max,omitempty"`
	Lim  string `json:"lim,omitempty"`
	Dec  *int   `json:"dec,omitempty"`
	Amt  string `json:"amt,omitempty"`
}

// Operation is implemented by Deploy, Mint and Transfer.
type Operation interface {
	Validate() error
	Message() Message
}

// Deploy creates a token.
type Deploy struct {
	Tick string
	Max  string
	Lim  string

	// Dec defaults to DefaultDecimals.
	Dec *int
}

func (d Deploy) Validate() error {
	if err := validateTick(d.Tick); err != nil {
		return err
	}
	supply, err := positiveDecimal("max", d.Max)
	if err != nil {
		return err
	}
	limit, err := positiveDecimal("lim", d.Lim)
	if err != nil {
		return err
	}
	if limit.Cmp(supply) > 0 {
		return fmt.Errorf("%w: lim %s exceeds max %s", ErrInvalidParams, d.Lim, d.Max)
	}
	if d.Dec != nil && (*d.Dec < 1 || *d.Dec > MaxDecimals) {
		return fmt.Errorf("%w: dec must be between 1 and %d, got %d", ErrInvalidParams, MaxDecimals, *d.Dec)
	}
	return nil
}

func (d Deploy) Message() Message {
	dec := DefaultDecimals
	if d.Dec != nil {
		dec = *d.Dec
	}
	return Message{Op: OpDeploy, P: Protocol, Tick: d.Tick, Max: d.Max, Lim: d.Lim, Dec: &dec}
}

// Mint claims tokens of an existing tick.
type Mint struct {
	Tick string
	Amt  string
}

func (m Mint) Validate() error {
	if err := validateTick(m.Tick); err != nil {
		return err
	}
	_, err := positiveDecimal("amt", m.Amt)
	return err
}

func (m Mint) Message() Message {
	return Message{Op: OpMint, P: Protocol, Tick: m.Tick, Amt: m.Amt}
}

// Transfer moves tokens to the transaction's recipient.
type Transfer struct {
	Tick string
	Amt  string
}

func (t Transfer) Validate() error {
	if err := validateTick(t.Tick); err != nil {
		return err
	}
	_, err := positiveDecimal("amt", t.Amt)
	return err
}

func (t Transfer) Message() Message {
	return Message{Op: OpTransfer, P: Protocol, Tick: t.Tick, Amt: t.Amt}
}

// JSON validates op and returns its JSON document.
func JSON(op Operation) ([]byte, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}
	msg := op.Message()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(msg); err != nil {
		return nil, fmt.Errorf("src20: encode message: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Text returns the on-chain text for op: Prefix followed by its JSON document.
func Text(op Operation) ([]byte, error) {
	doc, err := JSON(op)
	if err != nil {
		return nil, err
	}
	return append([]byte(Prefix), doc...), nil
}

// Parse reads a message from stamp text. The prefix is optional and op and
// protocol are matched case-insensitively.
func Parse(text []byte) (*Message, error) {
	doc := bytes.TrimSpace(text)
	if len(doc) >= len(Prefix) && strings.EqualFold(string(doc[:len(Prefix)]), Prefix) {
		doc = doc[len(Prefix):]
	}

	var msg Message
	if err := json.Unmarshal(doc, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSRC20, err)
	}
	if !strings.EqualFold(msg.P, Protocol) {
		return nil, fmt.Errorf("%w: protocol %q", ErrNotSRC20, msg.P)
	}
	msg.P = Protocol
	msg.Op = strings.ToUpper(msg.Op)
	switch msg.Op {
	case OpDeploy, OpMint, OpTransfer:
	default:
		return nil, fmt.Errorf("%w: unknown op %q", ErrNotSRC20, msg.Op)
	}
	return &msg, nil
}

// Operation returns the typed operation described by m.
func (m *Message) Operation() (Operation, error) {
	switch m.Op {
	case OpDeploy:
		return Deploy{Tick: m.Tick, Max: m.Max, Lim: m.Lim, Dec: m.Dec}, nil
	case OpMint:
		return Mint{Tick: m.Tick, Amt: m.Amt}, nil
	case OpTransfer:
		return Transfer{Tick: m.Tick, Amt: m.Amt}, nil
	default:
		return nil, fmt.Errorf("%w: unknown op %q", ErrNotSRC20, m.Op)
	}
}

func validateTick(tick string) error {
	if strings.TrimSpace(tick) == "" {
		return fmt.Errorf("%w: tick is required", ErrInvalidParams)
	}
	if n := utf8.RuneCountInString(tick); n > MaxTickLength {
		return fmt.Errorf("%w: tick %q is %d characters, max %d", ErrInvalidParams, tick, n, MaxTickLength)
	}
	return nil
}

func positiveDecimal(field, value string) (*big.Rat, error) {
	if value == "" {
		return nil, fmt.Errorf("%w: %s is required", ErrInvalidParams, field)
	}
	if !decimalPattern.MatchString(value) {
		return nil, fmt.Errorf("%w: %s %q is not a decimal number", ErrInvalidParams, field, value)
	}
	r, ok := new(big.Rat).SetString(value)
	if !ok || r.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidParams, field, value)
	}
	return r, nil
}
