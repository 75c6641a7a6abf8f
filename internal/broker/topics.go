package broker

import (
	"fmt"
	"sort"
)

const (
	chatPrefix         = "chat"
	voicePrefix        = "voice_call"
	notificationPrefix = "notifications"
)

// PairTopic は2者のユーザー名をソートしてトピック名を作ります
// どちらから接続しても同じ名前になります
func PairTopic(prefix, a, b string) string {
	users := []string{a, b}
	sort.Strings(users)
	return fmt.Sprintf("%s_%s_%s", prefix, users[0], users[1])
}

// ChatTopic は1対1チャットのトピック名です
func ChatTopic(a, b string) string { return PairTopic(chatPrefix, a, b) }

// VoiceTopic は通話シグナリングのトピック名です
func VoiceTopic(a, b string) string { return PairTopic(voicePrefix, a, b) }

// NotificationTopic はユーザーごとの通知トピック名です
func NotificationTopic(identity string) string {
	return fmt.Sprintf("%s_%s", notificationPrefix, identity)
}

// IsVoiceTopic は通話シグナリングのトピックかどうかを返します
func IsVoiceTopic(name string) bool {
	return len(name) > len(voicePrefix) && name[:len(voicePrefix)+1] == voicePrefix+"_"
}
