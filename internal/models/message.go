package models

import (
	"errors"
	"strings"
	"time"
)

// AnonymousUser 是未提供用户名时的占位身份。
const AnonymousUser = "anon"

const (
	MaxUsernameLength = 50
	MaxContentLength  = 1000
)

// Message 是消息的线上表示，缓存、总线与 HTTP 响应共用同一份 JSON 形态。
// ID 为 Store 分配的单调递增标识，也是历史分页的游标。
type Message struct {
	ID        string `json:"_id"`
	Room      string `json:"room"`
	Username  string `json:"username"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// Inbound 是客户端经 WebSocket 或 REST 提交的消息体。
type Inbound struct {
	Username string `json:"username"`
	Content  string `json:"content"`
}

var (
	ErrEmptyContent   = errors.New("content must not be empty")
	ErrContentTooLong = errors.New("content exceeds 1000 characters")
	ErrUsernameLong   = errors.New("username exceeds 50 characters")
)

// Validate 清洗并校验入站消息：去除首尾空白，用户名缺省为 anon。
// 校验失败时入站消息保持不变。
func (in *Inbound) Validate() error {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		username = AnonymousUser
	}
	if len([]rune(username)) > MaxUsernameLength {
		return ErrUsernameLong
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return ErrEmptyContent
	}
	if len([]rune(content)) > MaxContentLength {
		return ErrContentTooLong
	}
	in.Username = username
	in.Content = content
	return nil
}

// FormatTime 将时间统一输出为带时区的 ISO-8601 字符串。
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
