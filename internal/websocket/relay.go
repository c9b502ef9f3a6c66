package websocket

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"collabhub/internal/apperrors"
	"collabhub/internal/config"
	"collabhub/internal/database"
	"collabhub/internal/metrics"
	"collabhub/internal/models"
	"collabhub/internal/presence"
	"collabhub/internal/services"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

const handlerTimeout = 10 * time.Second

var activityEvents = map[models.InboundKind]models.OutboundKind{
	models.InboundTaskUpdate:  models.OutboundTaskUpdated,
	models.InboundResourceNew: models.OutboundResourceAdded,
	models.InboundEventNew:    models.OutboundEventAdded,
}

func userRoom(userID string) string   { return "user:" + userID }
func groupRoom(groupID string) string { return "group:" + groupID }

type Deps struct {
	Hub      *Hub
	Messages *services.MessageService
	Groups   *services.GroupService
	Users    database.UserRepository
	Presence presence.Table
	Metrics  *metrics.Metrics
	Config   config.WebSocketConfig
	Log      *zap.SugaredLogger
}

// Relay runs authenticated sessions: it joins them to their rooms, tracks
// presence and turns inbound events into persisted messages and broadcasts.
type Relay struct {
	hub      *Hub
	messages *services.MessageService
	groups   *services.GroupService
	users    database.UserRepository
	presence presence.Table
	metrics  *metrics.Metrics
	cfg      config.WebSocketConfig
	codec    *codec
	locks    *userLocks
	sessions sync.WaitGroup
	log      *zap.SugaredLogger
}

func NewRelay(d Deps) *Relay {
	return &Relay{
		hub:      d.Hub,
		messages: d.Messages,
		groups:   d.Groups,
		users:    d.Users,
		presence: d.Presence,
		metrics:  d.Metrics,
		cfg:      d.Config,
		codec:    newCodec(),
		locks:    newUserLocks(),
		log:      d.Log,
	}
}

// Serve takes over an upgraded connection for an already verified user.
func (r *Relay) Serve(conn *websocket.Conn, user *models.User) {
	client := newClient(r.hub, conn, user, r.cfg, r.log)
	r.sessions.Add(1)
	go func() {
		defer r.sessions.Done()
		r.run(client)
	}()
}

// Shutdown waits until every session has finished disconnecting, or until
// ctx is done. Sessions end once the hub stops and closes their connections.
func (r *Relay) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Relay) run(c *Client) {
	ctx := context.Background()
	if err := r.connect(ctx, c); err != nil {
		c.log.Errorw("Failed to start session", "error", err)
		deadline := time.Now().Add(r.cfg.WriteWait)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, apperrors.PublicMessage(err)), deadline)
		c.conn.Close()
		return
	}
	go c.writePump()
	defer r.disconnect(ctx, c)

	c.readPump(func(frame []byte) bool {
		return r.dispatch(ctx, c, frame)
	})
}

func (r *Relay) connect(ctx context.Context, c *Client) error {
	groupIDs, err := r.groups.GroupIDsOf(ctx, c.user.ID)
	if err != nil {
		return err
	}
	unlock := r.locks.lock(c.user.ID)
	defer unlock()

	first, err := r.presence.MarkOnline(ctx, c.user.ID, c.connID)
	if err != nil {
		return err
	}

	rooms := make([]string, 0, len(groupIDs)+1)
	rooms = append(rooms, userRoom(c.user.ID))
	for _, id := range groupIDs {
		rooms = append(rooms, groupRoom(id))
	}
	r.hub.register(c, rooms...)
	r.metrics.Connections.Inc()

	if first {
		r.saveStatus(ctx, c.user.ID, models.StatusOnline, time.Now().UTC())
	}
	r.broadcastAll(models.OutboundUserOnline, models.UserOnlinePayload{UserID: c.user.ID, Status: models.StatusOnline})
	c.log.Infow("Session connected", "groups", len(groupIDs))
	return nil
}

// disconnect leaves every room and, when this was the user's last
// connection, announces the user offline. The presence update completes
// before the announcement, and the whole transition holds the user's lock.
func (r *Relay) disconnect(ctx context.Context, c *Client) {
	r.hub.unregister(c)
	r.metrics.Connections.Dec()

	unlock := r.locks.lock(c.user.ID)
	defer unlock()

	last, err := r.presence.MarkOffline(ctx, c.user.ID, c.connID)
	if err != nil {
		c.log.Errorw("Failed to update presence on disconnect", "error", err)
		return
	}
	c.log.Infow("Session closed", "lastConnection", last)
	if !last {
		return
	}

	lastSeen := time.Now().UTC()
	r.saveStatus(ctx, c.user.ID, models.StatusOffline, lastSeen)
	r.broadcastAll(models.OutboundUserOffline, models.UserOfflinePayload{
		UserID:   c.user.ID,
		Status:   models.StatusOffline,
		LastSeen: lastSeen,
	})
}

func (r *Relay) saveStatus(ctx context.Context, userID string, status models.UserStatus, at time.Time) {
	if err := r.users.UpdateUserStatus(ctx, userID, status, at); err != nil {
		r.log.Warnw("Failed to persist user status", "userId", userID, "status", status, "error", err)
	}
}

// dispatch handles one frame. It returns false once the session should end.
func (r *Relay) dispatch(ctx context.Context, c *Client, frame []byte) (keep bool) {
	in, err := r.codec.decode(frame)
	if err != nil {
		r.metrics.Events.WithLabelValues("invalid", metrics.OutcomeRejected).Inc()
		c.log.Debugw("Rejected frame", "error", err)
		r.replyError(c, err)
		return true
	}
	if _, ok := in.(models.Logout); ok {
		r.metrics.Events.WithLabelValues(string(in.Kind()), metrics.OutcomeOK).Inc()
		return false
	}

	event := string(in.Kind())
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			c.log.Errorw("Event handler panicked", "event", event, "panic", p, "stack", string(debug.Stack()))
			r.metrics.Events.WithLabelValues(event, metrics.OutcomeFailed).Inc()
			r.replyError(c, errors.New("internal error"))
			keep = true
		}
		r.metrics.EventLatency.WithLabelValues(event).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	err = r.handle(ctx, c, in)
	switch {
	case err == nil:
		r.metrics.Events.WithLabelValues(event, metrics.OutcomeOK).Inc()
	case errors.Is(err, apperrors.ErrPersistence):
		c.log.Errorw("Event failed", "event", event, "error", err)
		r.metrics.Events.WithLabelValues(event, metrics.OutcomeFailed).Inc()
		r.replyError(c, err)
	default:
		c.log.Debugw("Event rejected", "event", event, "error", err)
		r.metrics.Events.WithLabelValues(event, metrics.OutcomeRejected).Inc()
		r.replyError(c, err)
	}
	return true
}

func (r *Relay) handle(ctx context.Context, c *Client, in models.Inbound) error {
	switch ev := in.(type) {
	case models.JoinGroup:
		if _, err := r.messages.RequireMembership(ctx, c.user.ID, ev.GroupID); err != nil {
			return err
		}
		r.hub.subscribe(c, groupRoom(ev.GroupID))

	case models.LeaveGroup:
		r.hub.unsubscribe(c, groupRoom(ev.GroupID))

	case models.GroupTyping:
		return r.broadcast([]string{groupRoom(ev.GroupID)}, c, models.OutboundTyping, models.TypingPayload{
			GroupID: ev.GroupID,
			UserID:  c.user.ID,
			Typing:  ev.Typing,
		})

	case models.DirectTyping:
		return r.broadcast([]string{userRoom(ev.ReceiverID)}, nil, models.OutboundDMTyping, models.DMTypingPayload{
			UserID: c.user.ID,
			Typing: ev.Typing,
		})

	case models.SendGroupMessage:
		msg, err := r.messages.SendGroupMessage(ctx, c.user, &ev.SendGroupMessageRequest)
		if err != nil {
			return sendFailure(err)
		}
		return r.PublishGroupMessage(msg)

	case models.SendDirectMessage:
		msg, err := r.messages.SendDirectMessage(ctx, c.user, &ev.SendDirectMessageRequest)
		if err != nil {
			return sendFailure(err)
		}
		return r.PublishDirectMessage(msg)

	case models.MessageRead:
		return r.broadcast([]string{userRoom(ev.ConversationID)}, c, models.OutboundMessageRead, models.ReadReceiptPayload{
			MessageID: ev.MessageID,
			ReadBy:    c.user.ID,
		})

	case models.GroupOnline:
		memberIDs, err := r.groups.MemberIDs(ctx, ev.GroupID)
		if err != nil {
			return err
		}
		online, err := r.presence.OnlineSubsetOf(ctx, memberIDs)
		if err != nil {
			return apperrors.Persistence("online members", err)
		}
		frame, err := r.codec.encode(models.OutboundGroupOnlineList, models.OnlineListPayload{GroupID: ev.GroupID, OnlineUsers: online})
		if err != nil {
			return err
		}
		r.hub.send(c, frame)

	case models.GroupActivity:
		if _, err := r.messages.RequireMembership(ctx, c.user.ID, ev.GroupID); err != nil {
			return err
		}
		return r.broadcast([]string{groupRoom(ev.GroupID)}, c, activityEvents[ev.Activity], jsoniter.RawMessage(ev.Payload))

	default:
		return apperrors.ErrUnknownEvent
	}
	return nil
}

// errSendFailed marks storage failures of send events, which clients see
// as sendFailedMessage.
var errSendFailed = errors.New("send failed")

const sendFailedMessage = "Error sending message"

func sendFailure(err error) error {
	if errors.Is(err, apperrors.ErrPersistence) {
		return errors.Join(errSendFailed, err)
	}
	return err
}

// PublishGroupMessage delivers a persisted group message to every session in
// the group's room, the sender's included.
func (r *Relay) PublishGroupMessage(msg *models.Message) error {
	return r.broadcast([]string{groupRoom(msg.GroupID)}, nil, models.OutboundGroupMessage, msg)
}

// PublishDirectMessage delivers a persisted direct message once to each
// session of the receiver and of the sender.
func (r *Relay) PublishDirectMessage(msg *models.Message) error {
	return r.broadcast([]string{userRoom(msg.ReceiverID), userRoom(msg.SenderID)}, nil, models.OutboundDirectMessage, msg)
}

func (r *Relay) broadcast(rooms []string, exclude *Client, kind models.OutboundKind, payload any) error {
	frame, err := r.codec.encode(kind, payload)
	if err != nil {
		return err
	}
	r.hub.broadcast(rooms, exclude, frame)
	return nil
}

func (r *Relay) broadcastAll(kind models.OutboundKind, payload any) {
	frame, err := r.codec.encode(kind, payload)
	if err != nil {
		r.log.Errorw("Failed to encode broadcast", "event", kind, "error", err)
		return
	}
	r.hub.broadcastAll(frame)
}

func (r *Relay) replyError(c *Client, err error) {
	message := apperrors.PublicMessage(err)
	if errors.Is(err, errSendFailed) {
		message = sendFailedMessage
	}
	frame, encErr := r.codec.encode(models.OutboundMessageError, models.ErrorPayload{Message: message})
	if encErr != nil {
		r.log.Errorw("Failed to encode error reply", "error", encErr)
		return
	}
	r.hub.send(c, frame)
}
