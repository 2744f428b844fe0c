package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Sender string

const (
	SenderUser   Sender = "user"
	SenderBot    Sender = "bot"
	SenderSystem Sender = "system"
)

type MessageKind string

const (
	KindText   MessageKind = "text"
	KindLoader MessageKind = "loader"
)

// TempIDPrefix marks client-generated message identifiers that have not yet
// been confirmed by the server.
const TempIDPrefix = "tmp_"

// Option is a selectable choice attached to a guided-workflow prompt. Value is
// what gets transmitted, Label is what gets displayed.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

type Message struct {
	ID        string      `json:"id"`
	Text      string      `json:"text"`
	Sender    Sender      `json:"sender"`
	Kind      MessageKind `json:"kind"`
	Timestamp time.Time   `json:"timestamp"`
	Options   []Option    `json:"options,omitempty"`

	// SentText is the literal transmitted value when it differs from the
	// display text, e.g. a workflow option's machine value. Set only on
	// optimistic user entries so server echoes can be matched.
	SentText string `json:"sentText,omitempty"`
}

// NewTempID returns a transient message identifier used for optimistic
// entries until the server-assigned id is learned.
func NewTempID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s%d_%s", TempIDPrefix, now.UnixMilli(), suffix)
}

func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Resolved reports whether the message carries a confirmed server identifier.
func (m Message) Resolved() bool {
	return m.ID != "" && !IsTempID(m.ID)
}
