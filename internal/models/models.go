package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Identity is the authenticated principal supplied by the identity
// gateway. It is opaque to this service and immutable for a session.
type Identity struct {
	ID          int64  `json:"id,string"`
	DisplayName string `json:"displayName"`
	AvatarUrl   string `json:"avatarUrl"`
}

type Channel struct {
	ID          int64  `json:"id,string"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedBy   int64  `json:"createdBy,string"`
	CreatedAt   int64  `json:"createdAt"` // unix milliseconds
}

type Message struct {
	ID          int64    `json:"id,string"`
	ChannelID   int64    `json:"channelID,string,omitempty"`
	SenderID    int64    `json:"senderID,string"`
	RecipientID int64    `json:"recipientID,string,omitempty"`
	Body        string   `json:"body"`
	CreatedAt   int64    `json:"createdAt"` // unix milliseconds
	Author      Identity `json:"author"`
}

type PresenceEntry struct {
	IdentityID  int64  `json:"identityID,string"`
	DisplayName string `json:"displayName"`
	AvatarUrl   string `json:"avatarUrl"`
}

// PresenceDelta describes a single change to the online set. Exactly
// one of Joined or Left is set.
type PresenceDelta struct {
	Joined *PresenceEntry `json:"joined,omitempty"`
	Left   *PresenceEntry `json:"left,omitempty"`
}

type TargetKind string

const (
	TargetNone    TargetKind = ""
	TargetChannel TargetKind = "channel"
	TargetDirect  TargetKind = "dm"
)

// Target identifies the conversation a message belongs to. A message
// belongs to exactly one kind: a channel, or the unordered pair of two
// direct participants. PairLo/PairHi hold the normalized pair so the
// same conversation is found no matter which participant asks.
type Target struct {
	Kind      TargetKind
	ChannelID int64
	PairLo    int64
	PairHi    int64
}

func ChannelTarget(channelID int64) Target {
	return Target{Kind: TargetChannel, ChannelID: channelID}
}

func DirectTarget(a, b int64) Target {
	if a > b {
		a, b = b, a
	}
	return Target{Kind: TargetDirect, PairLo: a, PairHi: b}
}

// Key returns the stable pub/sub channel key for this target.
func (t Target) Key() string {
	switch t.Kind {
	case TargetChannel:
		return fmt.Sprintf("channel:%d", t.ChannelID)
	case TargetDirect:
		return fmt.Sprintf("dm:%d:%d", t.PairLo, t.PairHi)
	}
	return ""
}

func (t Target) IsZero() bool {
	return t.Kind == TargetNone
}

// ParseTarget parses the wire form "channel:<id>" or "dm:<peerID>".
// Direct targets are resolved against the requesting identity so the
// wire form only ever names the peer.
func ParseTarget(raw string, currentUser int64) (Target, error) {
	kind, rest, found := strings.Cut(raw, ":")
	if !found {
		return Target{}, fmt.Errorf("target %q is not in kind:id form", raw)
	}

	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id == 0 {
		return Target{}, fmt.Errorf("target %q has an invalid id", raw)
	}

	switch TargetKind(kind) {
	case TargetChannel:
		return ChannelTarget(id), nil
	case TargetDirect:
		if id == currentUser {
			return Target{}, fmt.Errorf("direct target can't point at yourself")
		}
		return DirectTarget(currentUser, id), nil
	}
	return Target{}, fmt.Errorf("unknown target kind %q", kind)
}

type ConfigFile struct {
	Address           string
	Port              string
	BehindNginx       bool
	TlsCert           string
	TlsKey            string
	PrintHttpRequests bool
	LogToFile         bool
	JwtSecret         string
	SnowflakeWorkerID int64
	SelfContained     bool
	DbUser            string
	DbPassword        string
	DbAddress         string
	DbPort            string
	DbDatabase        string
	DbFile            string
	RedisAddress      string
	RedisPassword     string
	PollIntervalSec   int
	RequestTimeoutSec int
	PresenceGraceSec  int
}
