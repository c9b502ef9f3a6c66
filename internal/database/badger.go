package database

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"collabhub/internal/apperrors"
	"collabhub/internal/database/zapadapter"
	"collabhub/internal/models"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const conflictRetries = 5

// BadgerDB is the embedded single-node store. Keys:
//
//	user:{id}                          user record
//	email:{email}                      user id
//	group:{id}                         group
//	member:{groupId}:{userId}          membership
//	usergroup:{userId}:{groupId}       membership (by-user index)
//	msg:{id}                           message
//	gmsg:{groupId}:{unixnano}:{id}     group timeline
//	dm:{lowId}|{highId}:{unixnano}:{id} direct timeline
//	inbox:{receiverId}:{id}            unread direct message marker
//	conv:{userId}:{otherId}            latest direct message id
type BadgerDB struct {
	db  *badger.DB
	log *zap.SugaredLogger
}

// userRecord keeps the password hash, which models.User hides from JSON.
type userRecord struct {
	models.User
	PasswordHash string `json:"passwordHash"`
}

func NewBadgerDB(log *zap.SugaredLogger, path string) (*BadgerDB, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(zapadapter.NewBadgerLogger(log)).
		WithLoggingLevel(badger.WARNING)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %q: %w", path, err)
	}
	log.Infow("Opened embedded store", "path", path)
	return &BadgerDB{db: db, log: log}, nil
}

func (b *BadgerDB) Close() error {
	return b.db.Close()
}

func ts(t time.Time) string {
	return fmt.Sprintf("%019d", t.UnixNano())
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// update runs fn in a read-write transaction, retrying on write conflicts.
func (b *BadgerDB) update(op string, fn func(txn *badger.Txn) error) error {
	var err error
	for range conflictRetries {
		err = b.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
		b.log.Debugw("Transaction conflict, retrying", "op", op)
	}
	return classify(op, err)
}

func (b *BadgerDB) view(op string, fn func(txn *badger.Txn) error) error {
	return classify(op, b.db.View(fn))
}

// classify passes domain errors through and wraps everything else as a
// storage failure.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, domain := range []error{
		apperrors.ErrNotFound, apperrors.ErrConflict, apperrors.ErrValidation,
	} {
		if errors.Is(err, domain) {
			return err
		}
	}
	return apperrors.Persistence(op, err)
}

func getJSON(txn *badger.Txn, key string, v any, notFound error) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return notFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), data)
}

func exists(txn *badger.Txn, key string) (bool, error) {
	_, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// scanKeys visits every key under prefix in ascending order.
func scanKeys(txn *badger.Txn, prefix string, visit func(key []byte, item *badger.Item) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		if err := visit(item.KeyCopy(nil), item); err != nil {
			return err
		}
	}
	return nil
}

// User Repository Implementation
func (b *BadgerDB) CreateUser(_ context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Status == "" {
		user.Status = models.StatusOffline
	}
	now := time.Now().UTC()
	user.CreatedAt, user.LastSeen = now, now

	return b.update("create user", func(txn *badger.Txn) error {
		taken, err := exists(txn, "email:"+user.Email)
		if err != nil {
			return err
		}
		if taken {
			return apperrors.ErrUserExists
		}
		if err := txn.Set([]byte("email:"+user.Email), []byte(user.ID)); err != nil {
			return err
		}
		return setJSON(txn, "user:"+user.ID, userRecord{User: *user, PasswordHash: user.PasswordHash})
	})
}

func loadUser(txn *badger.Txn, id string) (*models.User, error) {
	var rec userRecord
	if err := getJSON(txn, "user:"+id, &rec, apperrors.ErrUserNotFound); err != nil {
		return nil, err
	}
	user := rec.User
	user.PasswordHash = rec.PasswordHash
	return &user, nil
}

func (b *BadgerDB) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	var user *models.User
	err := b.view("get user by email", func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("email:" + email))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return apperrors.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		user, err = loadUser(txn, string(id))
		return err
	})
	return user, err
}

func (b *BadgerDB) GetUserByID(_ context.Context, id string) (*models.User, error) {
	var user *models.User
	err := b.view("get user", func(txn *badger.Txn) error {
		var err error
		user, err = loadUser(txn, id)
		return err
	})
	return user, err
}

func (b *BadgerDB) UpdateUserStatus(_ context.Context, id string, status models.UserStatus, lastSeen time.Time) error {
	return b.update("update user status", func(txn *badger.Txn) error {
		user, err := loadUser(txn, id)
		if err != nil {
			return err
		}
		user.Status = status
		user.LastSeen = lastSeen.UTC()
		return setJSON(txn, "user:"+id, userRecord{User: *user, PasswordHash: user.PasswordHash})
	})
}

// Group Repository Implementation
func (b *BadgerDB) CreateGroup(_ context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	group.CreatedAt = time.Now().UTC()
	owner := &models.Membership{
		UserID:   group.OwnerID,
		GroupID:  group.ID,
		Role:     models.RoleOwner,
		JoinedAt: group.CreatedAt,
	}

	return b.update("create group", func(txn *badger.Txn) error {
		if _, err := loadUser(txn, group.OwnerID); err != nil {
			return err
		}
		if err := setJSON(txn, "group:"+group.ID, group); err != nil {
			return err
		}
		return putMembership(txn, owner)
	})
}

func (b *BadgerDB) GetGroupByID(_ context.Context, id string) (*models.Group, error) {
	group := &models.Group{}
	err := b.view("get group", func(txn *badger.Txn) error {
		return getJSON(txn, "group:"+id, group, apperrors.ErrGroupNotFound)
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

func (b *BadgerDB) ListUserGroups(_ context.Context, userID string) ([]*models.Group, error) {
	var groups []*models.Group
	err := b.view("list user groups", func(txn *badger.Txn) error {
		return scanKeys(txn, "usergroup:"+userID+":", func(_ []byte, item *badger.Item) error {
			var m models.Membership
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &m) }); err != nil {
				return err
			}
			group := &models.Group{}
			if err := getJSON(txn, "group:"+m.GroupID, group, apperrors.ErrGroupNotFound); err != nil {
				return err
			}
			groups = append(groups, group)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(groups, func(a, b *models.Group) int { return strings.Compare(a.Name, b.Name) })
	return groups, nil
}

// Membership Repository Implementation
func putMembership(txn *badger.Txn, m *models.Membership) error {
	if err := setJSON(txn, "member:"+m.GroupID+":"+m.UserID, m); err != nil {
		return err
	}
	return setJSON(txn, "usergroup:"+m.UserID+":"+m.GroupID, m)
}

func (b *BadgerDB) AddMembership(_ context.Context, m *models.Membership) error {
	m.JoinedAt = time.Now().UTC()
	return b.update("add membership", func(txn *badger.Txn) error {
		if _, err := loadUser(txn, m.UserID); err != nil {
			return err
		}
		if ok, err := exists(txn, "group:"+m.GroupID); err != nil {
			return err
		} else if !ok {
			return apperrors.ErrGroupNotFound
		}
		if ok, err := exists(txn, "member:"+m.GroupID+":"+m.UserID); err != nil {
			return err
		} else if ok {
			return apperrors.ErrMemberExists
		}
		return putMembership(txn, m)
	})
}

func (b *BadgerDB) FindMembership(_ context.Context, userID, groupID string) (*models.Membership, error) {
	m := &models.Membership{}
	err := b.view("find membership", func(txn *badger.Txn) error {
		return getJSON(txn, "member:"+groupID+":"+userID, m, apperrors.ErrMembershipNotFound)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (b *BadgerDB) FindMembershipsByUser(_ context.Context, userID string) ([]*models.Membership, error) {
	var memberships []*models.Membership
	err := b.view("find memberships", func(txn *badger.Txn) error {
		return scanKeys(txn, "usergroup:"+userID+":", func(_ []byte, item *badger.Item) error {
			m := &models.Membership{}
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, m) }); err != nil {
				return err
			}
			memberships = append(memberships, m)
			return nil
		})
	})
	return memberships, err
}

func (b *BadgerDB) FindMembersByGroup(_ context.Context, groupID string) ([]*models.Member, error) {
	var members []*models.Member
	err := b.view("find members", func(txn *badger.Txn) error {
		return scanKeys(txn, "member:"+groupID+":", func(_ []byte, item *badger.Item) error {
			var m models.Membership
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &m) }); err != nil {
				return err
			}
			user, err := loadUser(txn, m.UserID)
			if err != nil {
				return err
			}
			user.PasswordHash = ""
			members = append(members, &models.Member{User: *user, Role: m.Role})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(members, func(a, b *models.Member) int { return strings.Compare(a.Name, b.Name) })
	return members, nil
}

// Message Repository Implementation
func (b *BadgerDB) CreateMessage(_ context.Context, msg *models.Message) error {
	if err := msg.Validate(); err != nil {
		return apperrors.Validation(err)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Read = false

	return b.update("create message", func(txn *badger.Txn) error {
		msg.CreatedAt = time.Now().UTC()
		stamp := ts(msg.CreatedAt)

		if msg.GroupID != "" {
			if ok, err := exists(txn, "group:"+msg.GroupID); err != nil {
				return err
			} else if !ok {
				return apperrors.ErrGroupNotFound
			}
			if err := txn.Set([]byte("gmsg:"+msg.GroupID+":"+stamp+":"+msg.ID), nil); err != nil {
				return err
			}
		} else {
			if ok, err := exists(txn, "user:"+msg.ReceiverID); err != nil {
				return err
			} else if !ok {
				return apperrors.ErrUnknownReceiver
			}
			keys := []string{
				"dm:" + pairKey(msg.SenderID, msg.ReceiverID) + ":" + stamp + ":" + msg.ID,
				"inbox:" + msg.ReceiverID + ":" + msg.ID,
			}
			for _, k := range keys {
				if err := txn.Set([]byte(k), nil); err != nil {
					return err
				}
			}
			for _, conv := range [][2]string{{msg.SenderID, msg.ReceiverID}, {msg.ReceiverID, msg.SenderID}} {
				if err := txn.Set([]byte("conv:"+conv[0]+":"+conv[1]), []byte(msg.ID)); err != nil {
					return err
				}
			}
		}
		return setJSON(txn, "msg:"+msg.ID, msg)
	})
}

func loadMessage(txn *badger.Txn, id string) (*models.Message, error) {
	msg := &models.Message{}
	if err := getJSON(txn, "msg:"+id, msg, apperrors.ErrMessageNotFound); err != nil {
		return nil, err
	}
	return msg, nil
}

// profiles resolves user ids to display profiles once per transaction.
type profiles struct {
	txn   *badger.Txn
	cache map[string]*models.Profile
}

func (p *profiles) get(id string) (*models.Profile, error) {
	if id == "" {
		return nil, nil
	}
	if profile, ok := p.cache[id]; ok {
		return profile, nil
	}
	user, err := loadUser(p.txn, id)
	if errors.Is(err, apperrors.ErrUserNotFound) {
		p.cache[id] = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.cache[id] = user.Profile()
	return p.cache[id], nil
}

// timeline walks a "{prefix}{unixnano}:{id}" index newest first, starting
// strictly before q.Before, and returns up to q.Limit accepted messages
// oldest first, each with its sender and receiver profiles.
func timeline(txn *badger.Txn, prefix string, q models.HistoryQuery, accept func(*models.Message) bool) ([]*models.Message, error) {
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	seek := []byte(prefix + "~")
	if !q.Before.IsZero() {
		seek = []byte(prefix + ts(q.Before))
	}

	people := &profiles{txn: txn, cache: map[string]*models.Profile{}}
	var messages []*models.Message
	for it.Seek(seek); it.ValidForPrefix([]byte(prefix)); it.Next() {
		if q.Limit > 0 && len(messages) == q.Limit {
			break
		}
		key := it.Item().Key()
		id := string(key[bytes.LastIndexByte(key, ':')+1:])
		msg, err := loadMessage(txn, id)
		if err != nil {
			return nil, err
		}
		if !accept(msg) {
			continue
		}
		if msg.Sender, err = people.get(msg.SenderID); err != nil {
			return nil, err
		}
		if msg.Receiver, err = people.get(msg.ReceiverID); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	slices.Reverse(messages)
	return messages, nil
}

func (b *BadgerDB) ListGroupMessages(_ context.Context, groupID string, q models.HistoryQuery) ([]*models.Message, error) {
	var messages []*models.Message
	err := b.view("list group messages", func(txn *badger.Txn) error {
		var err error
		messages, err = timeline(txn, "gmsg:"+groupID+":", q, func(m *models.Message) bool {
			if q.ChannelType != "" {
				return m.ChannelType == q.ChannelType
			}
			return m.ChannelType.IsGroupChannel()
		})
		return err
	})
	return messages, err
}

func (b *BadgerDB) ListDirectMessages(_ context.Context, userID, otherID string, q models.HistoryQuery) ([]*models.Message, error) {
	var messages []*models.Message
	err := b.view("list direct messages", func(txn *badger.Txn) error {
		var err error
		messages, err = timeline(txn, "dm:"+pairKey(userID, otherID)+":", q, func(*models.Message) bool { return true })
		return err
	})
	return messages, err
}

func (b *BadgerDB) MarkDirectMessagesRead(_ context.Context, senderID, receiverID string) (int, error) {
	var marked int
	err := b.update("mark messages read", func(txn *badger.Txn) error {
		marked = 0
		var unread []string
		err := scanKeys(txn, "inbox:"+receiverID+":", func(key []byte, _ *badger.Item) error {
			unread = append(unread, string(key[bytes.LastIndexByte(key, ':')+1:]))
			return nil
		})
		if err != nil {
			return err
		}
		for _, id := range unread {
			msg, err := loadMessage(txn, id)
			if err != nil {
				return err
			}
			if msg.SenderID != senderID {
				continue
			}
			msg.Read = true
			if err := setJSON(txn, "msg:"+id, msg); err != nil {
				return err
			}
			if err := txn.Delete([]byte("inbox:" + receiverID + ":" + id)); err != nil {
				return err
			}
			marked++
		}
		return nil
	})
	return marked, err
}

func (b *BadgerDB) ListConversations(_ context.Context, userID string) ([]*models.Conversation, error) {
	var conversations []*models.Conversation
	prefix := "conv:" + userID + ":"
	err := b.view("list conversations", func(txn *badger.Txn) error {
		return scanKeys(txn, prefix, func(key []byte, item *badger.Item) error {
			id, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			msg, err := loadMessage(txn, string(id))
			if err != nil {
				return err
			}
			other, err := loadUser(txn, string(key[len(prefix):]))
			if err != nil {
				return err
			}
			other.PasswordHash = ""
			conversations = append(conversations, &models.Conversation{User: *other, LastMessage: *msg})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortConversations(conversations)
	return conversations, nil
}

func (b *BadgerDB) CountUnread(_ context.Context, userID string) (int, error) {
	var count int
	err := b.view("count unread", func(txn *badger.Txn) error {
		return scanKeys(txn, "inbox:"+userID+":", func([]byte, *badger.Item) error {
			count++
			return nil
		})
	})
	return count, err
}

// sortConversations orders conversations by their latest message, newest first.
func sortConversations(conversations []*models.Conversation) {
	slices.SortFunc(conversations, func(a, b *models.Conversation) int {
		return b.LastMessage.CreatedAt.Compare(a.LastMessage.CreatedAt)
	})
}
