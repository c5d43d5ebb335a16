package model

// 通知レベル。
const (
	NoticeError   = "error"
	NoticeWarning = "warning"
	NoticeInfo    = "info"
	NoticeSuccess = "success"
)

// Notice はユーザーに表示する通知（トースト）を表す。
// Fieldは入力検証エラーの対象フィールド。同じ文言でもフィールドが違えば別の通知になる。
type Notice struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}
