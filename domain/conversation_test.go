package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalPair_OrderInvariant(t *testing.T) {
	req := require.New(t)

	req.Equal(CanonicalPair("alice", "bob"), CanonicalPair("bob", "alice"))
	req.Equal([2]string{"alice", "bob"}, CanonicalPair("bob", "alice"))
}

func TestConversation_HasAndPeer(t *testing.T) {
	req := require.New(t)
	convo := Conversation{Participants: CanonicalPair("bob", "alice")}

	req.True(convo.Has("alice"))
	req.True(convo.Has("bob"))
	req.False(convo.Has("mallory"))

	req.Equal("bob", convo.Peer("alice"))
	req.Equal("alice", convo.Peer("bob"))
}

func TestPreviewAndPushBody_Truncation(t *testing.T) {
	req := require.New(t)

	short := "short message"
	req.Equal(short, Preview(short))
	req.Equal(short, PushBody(short))

	long := strings.Repeat("é", 500)
	req.Len([]rune(Preview(long)), PreviewLength)
	req.Len([]rune(PushBody(long)), PushBodyLength)
}

func TestValidContent(t *testing.T) {
	req := require.New(t)

	req.True(ValidContent("hello"))
	req.False(ValidContent(""))
	req.False(ValidContent("   \n\t "))
}
