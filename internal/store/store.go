package store

import (
	"database/sql"
	"strings"

	"teamchat-backend/internal/apperr"
	"teamchat-backend/internal/models"
	"teamchat-backend/internal/snowflake"

	"github.com/pkg/errors"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// UpsertIdentity records the externally supplied principal so message
// feeds can join display names onto author IDs.
func (s *Store) UpsertIdentity(principal models.Identity) error {
	result, err := s.db.Exec("UPDATE identities SET display_name = ?, avatar = ? WHERE id = ?",
		principal.DisplayName, principal.AvatarUrl, principal.ID)
	if err != nil {
		return apperr.TransientStore(err, "updating identity")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperr.TransientStore(err, "updating identity")
	}
	if affected > 0 {
		return nil
	}

	_, err = s.db.Exec("INSERT INTO identities (id, display_name, avatar) VALUES (?, ?, ?)",
		principal.ID, principal.DisplayName, principal.AvatarUrl)
	if err != nil {
		// a concurrent upsert may have won the insert; the row exists either way
		if exists, existsErr := s.identityExists(principal.ID); existsErr == nil && exists {
			return nil
		}
		return apperr.TransientStore(err, "inserting identity")
	}

	return nil
}

func (s *Store) identityExists(id int64) (bool, error) {
	var exists bool
	err := s.db.QueryRow("SELECT EXISTS(SELECT 1 FROM identities WHERE id = ?)", id).Scan(&exists)
	return exists, err
}

func (s *Store) GetIdentity(id int64) (models.Identity, error) {
	var principal models.Identity
	var avatar sql.NullString

	err := s.db.QueryRow("SELECT id, display_name, avatar FROM identities WHERE id = ?", id).
		Scan(&principal.ID, &principal.DisplayName, &avatar)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Identity{}, apperr.Validation("identity", "unknown")
	} else if err != nil {
		return models.Identity{}, apperr.TransientStore(err, "fetching identity")
	}

	principal.AvatarUrl = avatar.String
	return principal, nil
}

// CreateChannel durably stores a new channel. Names are unique
// case-insensitively; any authenticated identity may create one.
func (s *Store) CreateChannel(name, description string, createdBy int64) (models.Channel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Channel{}, apperr.Validation("name", "missing")
	}

	nameLower := strings.ToLower(name)

	taken, err := s.channelNameTaken(nameLower)
	if err != nil {
		return models.Channel{}, err
	}
	if taken {
		return models.Channel{}, apperr.Validation("name", "taken")
	}

	id, err := snowflake.Generate()
	if err != nil {
		return models.Channel{}, apperr.TransientStore(err, "generating channel ID")
	}

	channel := models.Channel{
		ID:          id,
		Name:        name,
		Description: description,
		CreatedBy:   createdBy,
		CreatedAt:   snowflake.ExtractTimestamp(id),
	}

	_, err = s.db.Exec("INSERT INTO channels (id, name, name_lower, description, created_by, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		channel.ID, channel.Name, nameLower, channel.Description, channel.CreatedBy, channel.CreatedAt)
	if err != nil {
		// the unique index may have caught a racing create with the same name
		if taken, takenErr := s.channelNameTaken(nameLower); takenErr == nil && taken {
			return models.Channel{}, apperr.Validation("name", "taken")
		}
		return models.Channel{}, apperr.TransientStore(err, "inserting channel")
	}

	return channel, nil
}

func (s *Store) channelNameTaken(nameLower string) (bool, error) {
	var taken bool
	err := s.db.QueryRow("SELECT EXISTS(SELECT 1 FROM channels WHERE name_lower = ?)", nameLower).Scan(&taken)
	if err != nil {
		return false, apperr.TransientStore(err, "checking channel name")
	}
	return taken, nil
}

func (s *Store) channelExists(id int64) (bool, error) {
	var exists bool
	err := s.db.QueryRow("SELECT EXISTS(SELECT 1 FROM channels WHERE id = ?)", id).Scan(&exists)
	if err != nil {
		return false, apperr.TransientStore(err, "checking channel")
	}
	return exists, nil
}

// ListChannels returns every channel in creation order. Channels are
// globally visible and never deleted.
func (s *Store) ListChannels() ([]models.Channel, error) {
	rows, err := s.db.Query("SELECT id, name, description, created_by, created_at FROM channels ORDER BY id ASC")
	if err != nil {
		return nil, apperr.TransientStore(err, "listing channels")
	}
	defer rows.Close()

	channels := []models.Channel{}

	for rows.Next() {
		var channel models.Channel

		err := rows.Scan(&channel.ID, &channel.Name, &channel.Description, &channel.CreatedBy, &channel.CreatedAt)
		if err != nil {
			return nil, apperr.TransientStore(err, "scanning channel")
		}

		channels = append(channels, channel)
	}

	if err := rows.Err(); err != nil {
		return nil, apperr.TransientStore(err, "listing channels")
	}

	return channels, nil
}

// AppendMessage is the sole mutation entrypoint for the message log.
// The ID and timestamp are assigned server-side; client timestamps are
// not trusted.
func (s *Store) AppendMessage(authorID int64, body string, target models.Target) (models.Message, error) {
	if strings.TrimSpace(body) == "" {
		return models.Message{}, apperr.Validation("body", "blank")
	}

	msg := models.Message{
		SenderID: authorID,
		Body:     body,
	}

	switch target.Kind {
	case models.TargetChannel:
		exists, err := s.channelExists(target.ChannelID)
		if err != nil {
			return models.Message{}, err
		}
		if !exists {
			return models.Message{}, apperr.Validation("target", "unknown_channel")
		}
		msg.ChannelID = target.ChannelID
	case models.TargetDirect:
		switch authorID {
		case target.PairLo:
			msg.RecipientID = target.PairHi
		case target.PairHi:
			msg.RecipientID = target.PairLo
		default:
			return models.Message{}, apperr.Validation("target", "author_not_participant")
		}
	default:
		return models.Message{}, apperr.Validation("target", "missing")
	}

	id, err := snowflake.Generate()
	if err != nil {
		return models.Message{}, apperr.TransientStore(err, "generating message ID")
	}

	msg.ID = id
	msg.CreatedAt = snowflake.ExtractTimestamp(id)

	_, err = s.db.Exec("INSERT INTO messages (id, channel_id, sender_id, recipient_id, pair_lo, pair_hi, body, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		msg.ID, msg.ChannelID, msg.SenderID, msg.RecipientID, target.PairLo, target.PairHi, msg.Body, msg.CreatedAt)
	if err != nil {
		return models.Message{}, apperr.TransientStore(err, "inserting message")
	}

	return msg, nil
}

// ListMessages returns messages for the target ordered by (created_at,
// id) ascending, which collapses to id ascending because snowflake IDs
// embed the timestamp. sinceID = 0 loads the window from the start;
// otherwise only messages newer than sinceID are returned, so repeated
// calls with the same sinceID are idempotent until new appends arrive.
func (s *Store) ListMessages(target models.Target, sinceID int64, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = defaultListLimit
	} else if limit > maxListLimit {
		limit = maxListLimit
	}

	query := `
		SELECT
			m.id, m.channel_id, m.sender_id, m.recipient_id, m.body, m.created_at,
			i.display_name, i.avatar
		FROM
			messages m
		LEFT JOIN
			identities i ON i.id = m.sender_id
		WHERE `

	var args []any

	switch target.Kind {
	case models.TargetChannel:
		query += "m.channel_id = ?"
		args = append(args, target.ChannelID)
	case models.TargetDirect:
		query += "m.pair_lo = ? AND m.pair_hi = ?"
		args = append(args, target.PairLo, target.PairHi)
	default:
		return nil, apperr.Validation("target", "missing")
	}

	query += " AND m.id > ? ORDER BY m.id ASC LIMIT ?"
	args = append(args, sinceID, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apperr.TransientStore(err, "listing messages")
	}
	defer rows.Close()

	messages := []models.Message{}

	for rows.Next() {
		var msg models.Message
		var displayName, avatar sql.NullString

		err := rows.Scan(&msg.ID, &msg.ChannelID, &msg.SenderID, &msg.RecipientID, &msg.Body, &msg.CreatedAt, &displayName, &avatar)
		if err != nil {
			return nil, apperr.TransientStore(err, "scanning message")
		}

		msg.Author = models.Identity{
			ID:          msg.SenderID,
			DisplayName: displayName.String,
			AvatarUrl:   avatar.String,
		}

		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, apperr.TransientStore(err, "listing messages")
	}

	return messages, nil
}

// CountMessages reports the total number of stored messages for a
// target. Used by tests and the health surface, not the feed path.
func (s *Store) CountMessages(target models.Target) (int, error) {
	var query string
	var args []any

	switch target.Kind {
	case models.TargetChannel:
		query = "SELECT COUNT(*) FROM messages WHERE channel_id = ?"
		args = append(args, target.ChannelID)
	case models.TargetDirect:
		query = "SELECT COUNT(*) FROM messages WHERE pair_lo = ? AND pair_hi = ?"
		args = append(args, target.PairLo, target.PairHi)
	default:
		return 0, apperr.Validation("target", "missing")
	}

	var count int
	err := s.db.QueryRow(query, args...).Scan(&count)
	if err != nil {
		return 0, apperr.TransientStore(err, "counting messages")
	}

	return count, nil
}
