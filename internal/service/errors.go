package service

import "errors"

// カスタムエラー定義
var (
	// ErrUnauthenticated は検証済みのアイデンティティがない接続です
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrIdentityMismatch はペイロードの送信者が接続のアイデンティティと異なる場合です
	ErrIdentityMismatch = errors.New("sender identity does not match session")
	ErrUnknownPeer      = errors.New("unknown peer")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrEmptyMessage     = errors.New("message content and file are both empty")
	ErrStorage          = errors.New("storage failure")
)
