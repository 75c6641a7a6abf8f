// Package models はアプリケーションで使用するデータ構造を定義します
package models

import (
	"path"
	"strings"
	"time"
)

// User は登録済みユーザーを表します
// Username がそのまま認証済みアイデンティティとして使われます
type User struct {
	Username  string `json:"username"`  // ユーザー名（一意）
	CreatedAt int64  `json:"createdAt"` // 登録日時（Unixタイムスタンプ）
}

// FileRef はメッセージに添付されたファイルへの参照です
// ファイル本体のアップロードと検証は外部コラボレーターが担当します
type FileRef struct {
	URL  string `json:"url"`            // 保存先URL
	Name string `json:"name,omitempty"` // 元のファイル名
	Type string `json:"type,omitempty"` // 拡張子（小文字、ドットなし）
}

// NewFileRef はURLとファイル名から参照を作成します
// ファイル名が空の場合はURLの末尾をファイル名として使います
func NewFileRef(url, name string) *FileRef {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = path.Base(url)
	}
	return &FileRef{URL: url, Name: name, Type: FileType(name)}
}

// FileType はファイル名の拡張子を小文字で返します
func FileType(name string) string {
	ext := path.Ext(name)
	if ext == "" {
		return ""
	}
	return strings.ToLower(ext[1:])
}

// ChatMessage は2者間のダイレクトメッセージです
// Content と File の両方が空になることはありません
type ChatMessage struct {
	ID        string    `json:"id"`             // ULID
	Sender    string    `json:"sender"`         // 送信者のユーザー名
	Receiver  string    `json:"receiver"`       // 受信者のユーザー名
	Content   string    `json:"content"`        // 本文（ファイル添付時は空の場合あり）
	File      *FileRef  `json:"file,omitempty"` // 添付ファイル
	Timestamp time.Time `json:"timestamp"`      // 送信日時
	Read      bool      `json:"read"`           // 既読フラグ
}

// Conversation は会話一覧の1行分です
type Conversation struct {
	Peer        string       `json:"peer"`                  // 相手のユーザー名
	LastMessage *ChatMessage `json:"lastMessage,omitempty"` // 最新メッセージ
	UnreadCount int          `json:"unreadCount"`           // 相手からの未読数
}
