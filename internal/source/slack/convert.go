package slack

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/slack-go/slack/slackevents"

	"earshot/internal/kit"
)

var mentionRe = regexp.MustCompile(`<@([A-Z0-9]+)>`)

// extractMentions pulls the mentioned user ids out of message text, in
// order of appearance.
func extractMentions(text string) []string {
	matches := mentionRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// classify determines the message type the way the user experiences it:
// an IM is direct, a threaded reply is a thread, text naming the user is
// a mention, everything else is channel traffic.
func classify(ev *slackevents.MessageEvent, selfID string) kit.MessageType {
	switch {
	case ev.ChannelType == "im":
		return kit.TypeDirect
	case ev.ThreadTimeStamp != "":
		return kit.TypeThread
	case selfID != "" && strings.Contains(ev.Text, "<@"+selfID+">"):
		return kit.TypeMention
	default:
		return kit.TypeChannel
	}
}

// convertMessage normalizes a Slack message event. nameFor resolves a
// user id to a display name. Events without a client msg id (edits,
// some app messages) get a random one so dedup still has a key.
func convertMessage(ev *slackevents.MessageEvent, selfID string, nameFor func(string) string) kit.Message {
	id := ev.ClientMsgID
	if id == "" {
		id = uuid.NewString()
	}
	ts, _ := strconv.ParseFloat(ev.TimeStamp, 64)

	return kit.Message{
		ID:         id,
		Content:    ev.Text,
		SenderID:   ev.User,
		SenderName: nameFor(ev.User),
		ChannelID:  ev.Channel,
		ThreadID:   ev.ThreadTimeStamp,
		Timestamp:  ts,
		Type:       classify(ev, selfID),
		Mentions:   extractMentions(ev.Text),
	}
}
