package websocket

import (
	"fmt"

	"collabhub/internal/apperrors"
	"collabhub/internal/models"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fastjson"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// codec turns frames into typed inbound events and outbound payloads into
// frames. Every frame is {"event": name, "data": payload}.
type codec struct {
	parsers  fastjson.ParserPool
	validate *validator.Validate
}

func newCodec() *codec {
	return &codec{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// activityFields names the object each activity event carries for the group.
var activityFields = map[models.InboundKind]string{
	models.InboundTaskUpdate:  "task",
	models.InboundResourceNew: "resource",
	models.InboundEventNew:    "event",
}

type rawFrame struct {
	event  string
	data   []byte
	bare   string
	isBare bool
}

// split reads the envelope without decoding the payload.
func (c *codec) split(frame []byte) (rawFrame, error) {
	p := c.parsers.Get()
	defer c.parsers.Put(p)

	v, err := p.ParseBytes(frame)
	if err != nil {
		return rawFrame{}, fmt.Errorf("%w: %v", apperrors.ErrMalformedFrame, err)
	}
	if v.Type() != fastjson.TypeObject {
		return rawFrame{}, apperrors.ErrMalformedFrame
	}
	event := v.GetStringBytes("event")
	if len(event) == 0 {
		return rawFrame{}, fmt.Errorf("%w: missing event name", apperrors.ErrMalformedFrame)
	}

	raw := rawFrame{event: string(event)}
	data := v.Get("data")
	if data == nil || data.Type() == fastjson.TypeNull {
		return raw, nil
	}
	if data.Type() == fastjson.TypeString {
		s, _ := data.StringBytes()
		raw.bare, raw.isBare = string(s), true
	}
	raw.data = data.MarshalTo(nil)
	return raw, nil
}

func (c *codec) decode(frame []byte) (models.Inbound, error) {
	raw, err := c.split(frame)
	if err != nil {
		return nil, err
	}

	kind := models.InboundKind(raw.event)
	var ev models.Inbound
	switch kind {
	case models.InboundGroupJoin, models.InboundGroupLeave:
		id, err := c.groupID(raw)
		if err != nil {
			return nil, err
		}
		if kind == models.InboundGroupJoin {
			return models.JoinGroup{GroupID: id}, nil
		}
		return models.LeaveGroup{GroupID: id}, nil
	case models.InboundTypingStart, models.InboundTypingStop:
		t := models.GroupTyping{Typing: kind == models.InboundTypingStart}
		err = c.payload(raw, &t)
		ev = t
	case models.InboundDMTypingStart, models.InboundDMTypingStop:
		t := models.DirectTyping{Typing: kind == models.InboundDMTypingStart}
		err = c.payload(raw, &t)
		ev = t
	case models.InboundSendGroup:
		var m models.SendGroupMessage
		err = c.payload(raw, &m.SendGroupMessageRequest)
		ev = m
	case models.InboundSendDM:
		var m models.SendDirectMessage
		err = c.payload(raw, &m.SendDirectMessageRequest)
		ev = m
	case models.InboundMessageRead:
		var m models.MessageRead
		err = c.payload(raw, &m)
		ev = m
	case models.InboundGroupOnline:
		var m models.GroupOnline
		err = c.payload(raw, &m)
		ev = m
	case models.InboundTaskUpdate, models.InboundResourceNew, models.InboundEventNew:
		a := models.GroupActivity{Activity: kind}
		if err = c.payload(raw, &a); err == nil {
			a.Payload, err = c.field(raw.data, activityFields[kind])
		}
		ev = a
	case models.InboundLogout:
		return models.Logout{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownEvent, raw.event)
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// groupID accepts either a bare id or {"groupId": id}.
func (c *codec) groupID(raw rawFrame) (string, error) {
	if raw.isBare {
		if raw.bare == "" {
			return "", apperrors.Validation(fmt.Errorf("groupId is required"))
		}
		return raw.bare, nil
	}
	var ev models.JoinGroup
	if err := c.payload(raw, &ev); err != nil {
		return "", err
	}
	return ev.GroupID, nil
}

// field extracts the raw JSON of one member of an object payload.
func (c *codec) field(data []byte, name string) ([]byte, error) {
	p := c.parsers.Get()
	defer c.parsers.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedFrame, err)
	}
	member := v.Get(name)
	if member == nil || member.Type() == fastjson.TypeNull {
		return nil, apperrors.Validation(fmt.Errorf("%s is required", name))
	}
	return member.MarshalTo(nil), nil
}

func (c *codec) payload(raw rawFrame, v any) error {
	if raw.isBare {
		return fmt.Errorf("%w: %s expects an object", apperrors.ErrMalformedFrame, raw.event)
	}
	if len(raw.data) > 0 {
		if err := json.Unmarshal(raw.data, v); err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrMalformedFrame, err)
		}
	}
	if err := c.validate.Struct(v); err != nil {
		return apperrors.Validation(err)
	}
	return nil
}

func (c *codec) encode(kind models.OutboundKind, data any) ([]byte, error) {
	return json.Marshal(models.Envelope{Event: string(kind), Data: data})
}
