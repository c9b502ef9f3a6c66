package database

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"collabhub/internal/apperrors"
	"collabhub/internal/database/zapadapter"
	"collabhub/internal/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schema string

type PostgresDB struct {
	pool *pgxpool.Pool
	log  *zap.SugaredLogger
}

// NewPostgresDB connects to databaseURL, retrying the first ping with
// exponential backoff for up to connectTimeout, and applies the schema.
func NewPostgresDB(ctx context.Context, log *zap.SugaredLogger, databaseURL string, connectTimeout time.Duration) (*PostgresDB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	config.ConnConfig.Tracer = &tracelog.TraceLog{
		Logger:   zapadapter.NewLogger(log.Desugar()),
		LogLevel: tracelog.LogLevelWarn,
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = connectTimeout
	ping := func() error { return pool.Ping(ctx) }
	notify := func(err error, wait time.Duration) {
		log.Warnw("Database not reachable yet", "error", err, "retryIn", wait)
	}
	if err := backoff.RetryNotify(ping, backoff.WithContext(policy, ctx), notify); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &PostgresDB{pool: pool, log: log}
	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info("Connected to database successfully")
	return db, nil
}

func (db *PostgresDB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// User Repository Implementation
const userColumns = `id, name, email, password_hash, avatar_url, status, last_seen, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash,
		&user.AvatarURL, &user.Status, &user.LastSeen, &user.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrUserNotFound
	}
	if err != nil {
		return nil, apperrors.Persistence("scan user", err)
	}
	return user, nil
}

func (db *PostgresDB) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Status == "" {
		user.Status = models.StatusOffline
	}

	query := `
		INSERT INTO users (id, name, email, password_hash, avatar_url, status, last_seen, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING last_seen, created_at`

	err := db.pool.QueryRow(ctx, query,
		user.ID, user.Name, user.Email, user.PasswordHash, user.AvatarURL, user.Status,
	).Scan(&user.LastSeen, &user.CreatedAt)
	if pgCode(err) == pgerrcode.UniqueViolation {
		return apperrors.ErrUserExists
	}
	if err != nil {
		return apperrors.Persistence("create user", err)
	}
	return nil
}

func (db *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(db.pool.QueryRow(ctx, query, email))
}

func (db *PostgresDB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(db.pool.QueryRow(ctx, query, id))
}

func (db *PostgresDB) UpdateUserStatus(ctx context.Context, id string, status models.UserStatus, lastSeen time.Time) error {
	tag, err := db.pool.Exec(ctx, `UPDATE users SET status = $2, last_seen = $3 WHERE id = $1`, id, status, lastSeen)
	if err != nil {
		return apperrors.Persistence("update user status", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

// Group Repository Implementation
func (db *PostgresDB) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return apperrors.Persistence("begin create group", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO groups (id, name, description, owner_id, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING created_at`,
		group.ID, group.Name, group.Description, group.OwnerID,
	).Scan(&group.CreatedAt)
	if pgCode(err) == pgerrcode.ForeignKeyViolation {
		return apperrors.ErrUserNotFound
	}
	if err != nil {
		return apperrors.Persistence("create group", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO group_members (user_id, group_id, role, joined_at) VALUES ($1, $2, $3, $4)`,
		group.OwnerID, group.ID, models.RoleOwner, group.CreatedAt,
	); err != nil {
		return apperrors.Persistence("create owner membership", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.Persistence("commit create group", err)
	}
	return nil
}

func (db *PostgresDB) GetGroupByID(ctx context.Context, id string) (*models.Group, error) {
	query := `SELECT id, name, description, owner_id, created_at FROM groups WHERE id = $1`

	group := &models.Group{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&group.ID, &group.Name, &group.Description, &group.OwnerID, &group.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrGroupNotFound
	}
	if err != nil {
		return nil, apperrors.Persistence("get group", err)
	}
	return group, nil
}

func (db *PostgresDB) ListUserGroups(ctx context.Context, userID string) ([]*models.Group, error) {
	query := `
		SELECT g.id, g.name, g.description, g.owner_id, g.created_at
		FROM groups g
		JOIN group_members m ON m.group_id = g.id
		WHERE m.user_id = $1
		ORDER BY g.name`

	rows, err := db.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, apperrors.Persistence("list user groups", err)
	}
	defer rows.Close()

	var groups []*models.Group
	for rows.Next() {
		group := &models.Group{}
		if err := rows.Scan(&group.ID, &group.Name, &group.Description, &group.OwnerID, &group.CreatedAt); err != nil {
			return nil, apperrors.Persistence("scan group", err)
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Persistence("list user groups", err)
	}
	return groups, nil
}

// Membership Repository Implementation
func (db *PostgresDB) AddMembership(ctx context.Context, m *models.Membership) error {
	err := db.pool.QueryRow(ctx, `
		INSERT INTO group_members (user_id, group_id, role, joined_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING joined_at`,
		m.UserID, m.GroupID, m.Role,
	).Scan(&m.JoinedAt)

	switch pgCode(err) {
	case pgerrcode.UniqueViolation:
		return apperrors.ErrMemberExists
	case pgerrcode.ForeignKeyViolation:
		return apperrors.ErrUserNotFound
	}
	if err != nil {
		return apperrors.Persistence("add membership", err)
	}
	return nil
}

func (db *PostgresDB) FindMembership(ctx context.Context, userID, groupID string) (*models.Membership, error) {
	query := `SELECT user_id, group_id, role, joined_at FROM group_members WHERE user_id = $1 AND group_id = $2`

	m := &models.Membership{}
	err := db.pool.QueryRow(ctx, query, userID, groupID).Scan(&m.UserID, &m.GroupID, &m.Role, &m.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrMembershipNotFound
	}
	if err != nil {
		return nil, apperrors.Persistence("find membership", err)
	}
	return m, nil
}

func (db *PostgresDB) FindMembershipsByUser(ctx context.Context, userID string) ([]*models.Membership, error) {
	query := `SELECT user_id, group_id, role, joined_at FROM group_members WHERE user_id = $1`

	rows, err := db.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, apperrors.Persistence("find memberships", err)
	}
	defer rows.Close()

	var memberships []*models.Membership
	for rows.Next() {
		m := &models.Membership{}
		if err := rows.Scan(&m.UserID, &m.GroupID, &m.Role, &m.JoinedAt); err != nil {
			return nil, apperrors.Persistence("scan membership", err)
		}
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Persistence("find memberships", err)
	}
	return memberships, nil
}

func (db *PostgresDB) FindMembersByGroup(ctx context.Context, groupID string) ([]*models.Member, error) {
	query := `
		SELECT u.id, u.name, u.email, u.avatar_url, u.status, u.last_seen, u.created_at, m.role
		FROM group_members m
		JOIN users u ON m.user_id = u.id
		WHERE m.group_id = $1
		ORDER BY u.name`

	rows, err := db.pool.Query(ctx, query, groupID)
	if err != nil {
		return nil, apperrors.Persistence("find members", err)
	}
	defer rows.Close()

	var members []*models.Member
	for rows.Next() {
		member := &models.Member{}
		if err := rows.Scan(
			&member.ID, &member.Name, &member.Email, &member.AvatarURL,
			&member.Status, &member.LastSeen, &member.CreatedAt, &member.Role,
		); err != nil {
			return nil, apperrors.Persistence("scan member", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Persistence("find members", err)
	}
	return members, nil
}

// Message Repository Implementation
// messageSelect reads messages with the sender's and receiver's profiles.
const messageSelect = `
		SELECT m.id, m.sender_id, COALESCE(m.group_id, ''), COALESCE(m.receiver_id, ''), m.content,
			m.attachment_url, m.channel_type, m.read, m.created_at,
			s.name, s.email, s.avatar_url,
			COALESCE(r.name, ''), COALESCE(r.email, ''), COALESCE(r.avatar_url, '')
		FROM messages m
		JOIN users s ON s.id = m.sender_id
		LEFT JOIN users r ON r.id = m.receiver_id`

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (db *PostgresDB) CreateMessage(ctx context.Context, msg *models.Message) error {
	if err := msg.Validate(); err != nil {
		return apperrors.Validation(err)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	query := `
		INSERT INTO messages (id, sender_id, group_id, receiver_id, content, attachment_url, channel_type, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, clock_timestamp())
		RETURNING created_at`

	err := db.pool.QueryRow(ctx, query,
		msg.ID, msg.SenderID, nullable(msg.GroupID), nullable(msg.ReceiverID),
		msg.Content, msg.AttachmentURL, msg.ChannelType,
	).Scan(&msg.CreatedAt)
	if pgCode(err) == pgerrcode.ForeignKeyViolation {
		if msg.ReceiverID != "" {
			return apperrors.ErrUnknownReceiver
		}
		return apperrors.ErrGroupNotFound
	}
	if err != nil {
		return apperrors.Persistence("create message", err)
	}
	msg.Read = false
	return nil
}

func (db *PostgresDB) queryMessages(ctx context.Context, op, query string, args ...any) ([]*models.Message, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Persistence(op, err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		sender, receiver := &models.Profile{}, &models.Profile{}
		if err := rows.Scan(
			&msg.ID, &msg.SenderID, &msg.GroupID, &msg.ReceiverID, &msg.Content,
			&msg.AttachmentURL, &msg.ChannelType, &msg.Read, &msg.CreatedAt,
			&sender.Name, &sender.Email, &sender.AvatarURL,
			&receiver.Name, &receiver.Email, &receiver.AvatarURL,
		); err != nil {
			return nil, apperrors.Persistence(op, err)
		}
		sender.ID = msg.SenderID
		msg.Sender = sender
		if msg.ReceiverID != "" {
			receiver.ID = msg.ReceiverID
			msg.Receiver = receiver
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Persistence(op, err)
	}

	// Reverse to show oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func beforeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().Add(time.Minute)
	}
	return t
}

func (db *PostgresDB) ListGroupMessages(ctx context.Context, groupID string, q models.HistoryQuery) ([]*models.Message, error) {
	channels := []string{string(models.ChannelGroup), string(models.ChannelAnnouncement)}
	if q.ChannelType != "" {
		channels = []string{string(q.ChannelType)}
	}

	query := `
` + messageSelect + `
		WHERE m.group_id = $1 AND m.channel_type = ANY($2) AND m.created_at < $3
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $4`
	return db.queryMessages(ctx, "list group messages", query, groupID, channels, beforeOrNow(q.Before), q.Limit)
}

func (db *PostgresDB) ListDirectMessages(ctx context.Context, userID, otherID string, q models.HistoryQuery) ([]*models.Message, error) {
	query := `
` + messageSelect + `
		WHERE m.channel_type = 'DM'
		  AND ((m.sender_id = $1 AND m.receiver_id = $2) OR (m.sender_id = $2 AND m.receiver_id = $1))
		  AND m.created_at < $3
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $4`
	return db.queryMessages(ctx, "list direct messages", query, userID, otherID, beforeOrNow(q.Before), q.Limit)
}

func (db *PostgresDB) MarkDirectMessagesRead(ctx context.Context, senderID, receiverID string) (int, error) {
	tag, err := db.pool.Exec(ctx, `
		UPDATE messages SET read = TRUE
		WHERE channel_type = 'DM' AND sender_id = $1 AND receiver_id = $2 AND read = FALSE`,
		senderID, receiverID,
	)
	if err != nil {
		return 0, apperrors.Persistence("mark messages read", err)
	}
	return int(tag.RowsAffected()), nil
}

func (db *PostgresDB) ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	query := `
		SELECT DISTINCT ON (counterpart)
			CASE WHEN m.sender_id = $1 THEN m.receiver_id ELSE m.sender_id END AS counterpart,
			m.id, m.sender_id, m.receiver_id, m.content, m.attachment_url, m.channel_type, m.read, m.created_at,
			u.name, u.email, u.avatar_url, u.status, u.last_seen, u.created_at
		FROM messages m
		JOIN users u ON u.id = CASE WHEN m.sender_id = $1 THEN m.receiver_id ELSE m.sender_id END
		WHERE m.channel_type = 'DM' AND (m.sender_id = $1 OR m.receiver_id = $1)
		ORDER BY counterpart, m.created_at DESC`

	rows, err := db.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, apperrors.Persistence("list conversations", err)
	}
	defer rows.Close()

	var conversations []*models.Conversation
	for rows.Next() {
		c := &models.Conversation{}
		if err := rows.Scan(
			&c.User.ID,
			&c.LastMessage.ID, &c.LastMessage.SenderID, &c.LastMessage.ReceiverID, &c.LastMessage.Content,
			&c.LastMessage.AttachmentURL, &c.LastMessage.ChannelType, &c.LastMessage.Read, &c.LastMessage.CreatedAt,
			&c.User.Name, &c.User.Email, &c.User.AvatarURL, &c.User.Status, &c.User.LastSeen, &c.User.CreatedAt,
		); err != nil {
			return nil, apperrors.Persistence("scan conversation", err)
		}
		conversations = append(conversations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Persistence("list conversations", err)
	}

	sortConversations(conversations)
	return conversations, nil
}

func (db *PostgresDB) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE channel_type = 'DM' AND receiver_id = $1 AND read = FALSE`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, apperrors.Persistence("count unread", err)
	}
	return count, nil
}
