package ws

import "chatapi/internal/models"

// 出站帧按 type 区分，与 REST 历史接口共用 models.Message 的 JSON 形态。

type historyFrame struct {
	Type   string           `json:"type"`
	Items  []models.Message `json:"items"`
	Room   string           `json:"room"`
	Source string           `json:"source"`
}

type messageFrame struct {
	Type string         `json:"type"`
	Item models.Message `json:"item"`
}

type presenceFrame struct {
	Type        string   `json:"type"`
	Username    string   `json:"username"`
	OnlineUsers []string `json:"online_users"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func newErrorFrame(message, details string) errorFrame {
	return errorFrame{Type: "error", Message: message, Details: details}
}
