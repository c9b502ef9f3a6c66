package websocket

import (
	"testing"

	"collabhub/internal/apperrors"
	"collabhub/internal/models"

	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	c := newCodec()

	tests := []struct {
		name  string
		frame string
		want  models.Inbound
	}{
		{"join bare id", `{"event":"group:join","data":"g1"}`, models.JoinGroup{GroupID: "g1"}},
		{"join object", `{"event":"group:join","data":{"groupId":"g1"}}`, models.JoinGroup{GroupID: "g1"}},
		{"leave", `{"event":"group:leave","data":"g1"}`, models.LeaveGroup{GroupID: "g1"}},
		{"typing start ignores client user id", `{"event":"typing:start","data":{"groupId":"g1","userId":"spoofed"}}`, models.GroupTyping{GroupID: "g1", Typing: true}},
		{"typing stop", `{"event":"typing:stop","data":{"groupId":"g1"}}`, models.GroupTyping{GroupID: "g1"}},
		{"dm typing", `{"event":"dm:typing:start","data":{"receiverId":"u2"}}`, models.DirectTyping{ReceiverID: "u2", Typing: true}},
		{"send group", `{"event":"send_group_message","data":{"groupId":"g1","content":"hi","channelType":"ANNOUNCEMENT"}}`,
			models.SendGroupMessage{SendGroupMessageRequest: models.SendGroupMessageRequest{GroupID: "g1", Content: "hi", ChannelType: models.ChannelAnnouncement}}},
		{"send dm", `{"event":"send_dm","data":{"receiverId":"u2","content":"hello","attachmentUrl":"https://x/y.png"}}`,
			models.SendDirectMessage{SendDirectMessageRequest: models.SendDirectMessageRequest{ReceiverID: "u2", Content: "hello", AttachmentURL: "https://x/y.png"}}},
		{"read receipt", `{"event":"message:read","data":{"messageId":"m1","conversationId":"u1"}}`, models.MessageRead{MessageID: "m1", ConversationID: "u1"}},
		{"online query", `{"event":"group:online","data":{"groupId":"g1"}}`, models.GroupOnline{GroupID: "g1"}},
		{"logout", `{"event":"logout"}`, models.Logout{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.decode([]byte(tt.frame))
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.want.Kind(), got.Kind())
		})
	}
}

func TestDecodeActivityExtractsItem(t *testing.T) {
	c := newCodec()

	tests := []struct {
		frame string
		kind  models.InboundKind
		want  string
	}{
		{`{"event":"task:update","data":{"groupId":"g1","task":{"id":7,"done":true}}}`, models.InboundTaskUpdate, `{"id":7,"done":true}`},
		{`{"event":"resource:new","data":{"groupId":"g1","resource":{"url":"https://example.com/a.pdf"}}}`, models.InboundResourceNew, `{"url":"https://example.com/a.pdf"}`},
		{`{"event":"event:new","data":{"groupId":"g1","event":{"title":"standup"},"extra":1}}`, models.InboundEventNew, `{"title":"standup"}`},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			got, err := c.decode([]byte(tt.frame))
			require.NoError(t, err)

			activity, ok := got.(models.GroupActivity)
			require.True(t, ok)
			require.Equal(t, tt.kind, activity.Kind())
			require.Equal(t, "g1", activity.GroupID)
			require.JSONEq(t, tt.want, string(activity.Payload))
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	c := newCodec()

	tests := []struct {
		name  string
		frame string
		want  error
	}{
		{"not json", `hello`, apperrors.ErrMalformedFrame},
		{"not an object", `["group:join","g1"]`, apperrors.ErrMalformedFrame},
		{"missing event", `{"data":"g1"}`, apperrors.ErrMalformedFrame},
		{"unknown event", `{"event":"group:explode","data":{}}`, apperrors.ErrUnknownEvent},
		{"typo in event", `{"event":"send_group_mesage","data":{}}`, apperrors.ErrUnknownEvent},
		{"wrong field type", `{"event":"send_dm","data":{"receiverId":5,"content":"x"}}`, apperrors.ErrMalformedFrame},
		{"bare string where object expected", `{"event":"send_dm","data":"u2"}`, apperrors.ErrMalformedFrame},
		{"missing group id", `{"event":"group:join"}`, apperrors.ErrValidation},
		{"empty bare group id", `{"event":"group:leave","data":""}`, apperrors.ErrValidation},
		{"missing content", `{"event":"send_group_message","data":{"groupId":"g1"}}`, apperrors.ErrValidation},
		{"bad channel", `{"event":"send_group_message","data":{"groupId":"g1","content":"x","channelType":"DM"}}`, apperrors.ErrValidation},
		{"activity without group", `{"event":"resource:new","data":{"resource":{}}}`, apperrors.ErrValidation},
		{"activity without item", `{"event":"task:update","data":{"groupId":"g1","resource":{}}}`, apperrors.ErrValidation},
		{"activity with null item", `{"event":"event:new","data":{"groupId":"g1","event":null}}`, apperrors.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.decode([]byte(tt.frame))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEncode(t *testing.T) {
	c := newCodec()
	frame, err := c.encode(models.OutboundTyping, models.TypingPayload{GroupID: "g1", UserID: "u1", Typing: true})
	require.NoError(t, err)
	require.JSONEq(t, `{"event":"typing:user","data":{"groupId":"g1","userId":"u1","typing":true}}`, string(frame))
}
