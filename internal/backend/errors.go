package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorKind はバックエンド呼び出しの失敗分類。
type ErrorKind int

const (
	// KindTransport はレスポンスが得られなかった（接続失敗・タイムアウト）。
	KindTransport ErrorKind = iota
	// KindUnauthorized はトークンを付けずに401を受けた（ログイン失敗など）。
	KindUnauthorized
	// KindForbidden は403。
	KindForbidden
	// KindNotFound は404。
	KindNotFound
	// KindValidation は422。
	KindValidation
	// KindServer は5xx。
	KindServer
	// KindOther は上記以外のエラーステータス。
	KindOther
	// KindUnexpected はリクエスト生成やレスポンス解析など、通信以外の失敗。
	KindUnexpected
)

// String はログ用の分類名を返す。
func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	case KindOther:
		return "other"
	default:
		return "unexpected"
	}
}

// ClassifyStatus はエラーステータスコードを分類する。
// 401はトークン有無で扱いが変わるため、ここでは常にKindUnauthorizedを返す。
func ClassifyStatus(statusCode int) ErrorKind {
	switch {
	case statusCode == 401:
		return KindUnauthorized
	case statusCode == 403:
		return KindForbidden
	case statusCode == 404:
		return KindNotFound
	case statusCode == 422:
		return KindValidation
	case statusCode >= 500:
		return KindServer
	default:
		return KindOther
	}
}

// FieldError はフィールド単位のバリデーションエラー。
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error はバックエンド呼び出しの失敗を表す。
// 通知は返却前に積まれているため、呼び出し元は追加の画面処理だけを行えばよい。
type Error struct {
	Kind       ErrorKind
	Method     string
	Path       string
	StatusCode int    // レスポンスが無い場合は0
	Message    string // バックエンドが返したメッセージ
	Fields     []FieldError
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "backend %s %s: %s", e.Method, e.Path, e.Kind)
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// FieldMap はフィールドエラーをmapとして返す。
func (e *Error) FieldMap() map[string]string {
	if len(e.Fields) == 0 {
		return nil
	}
	m := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		m[f.Field] = f.Message
	}
	return m
}

// SessionExpiredError は認証付きリクエストが401を受けたことを表す。
// HTTP層は画面遷移を行わず、このエラーを受けた上位層（ハンドラー）が
// セッションを破棄してログイン画面へ誘導する。
type SessionExpiredError struct {
	Method string
	Path   string
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("backend %s %s: session expired", e.Method, e.Path)
}

// IsSessionExpired はerrがSessionExpiredErrorを含むかを返す。
func IsSessionExpired(err error) bool {
	var target *SessionExpiredError
	return errors.As(err, &target)
}

// AsError はerrから*Errorを取り出す。
func AsError(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// MessageOf はエラーからユーザー向けのバックエンドメッセージを取り出す。
// 取り出せない場合はfallbackを返す。
func MessageOf(err error, fallback string) string {
	if e, ok := AsError(err); ok && e.Message != "" {
		return e.Message
	}
	return fallback
}

// errorBody はバックエンドのエラーレスポンス。
// {status, message, timestamp, path} と {message, errors} の両方を受け付ける。
type errorBody struct {
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Errors  json.RawMessage `json:"errors"`
}

// parseErrorBody はエラーレスポンスからメッセージとフィールドエラーを取り出す。
// JSONでない場合は空を返す。
func parseErrorBody(body []byte) (string, []FieldError) {
	var eb errorBody
	if len(body) == 0 || json.Unmarshal(body, &eb) != nil {
		return "", nil
	}
	msg := eb.Message
	if msg == "" {
		msg = eb.Error
	}
	return msg, parseFieldErrors(eb.Errors)
}

// parseFieldErrors は errors フィールドを解釈する。
// {"field": "msg"}、{"field": ["msg", ...]}、[{"field","message"}]、["msg"] の形式に対応し、
// フィールド名順に並べて返す。
func parseFieldErrors(raw json.RawMessage) []FieldError {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var fields []FieldError

	var byField map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byField); err == nil {
		for name, v := range byField {
			if msg := rawMessageText(v); msg != "" {
				fields = append(fields, FieldError{Field: name, Message: msg})
			}
		}
	} else {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil
		}
		for i, item := range list {
			var fe struct {
				Field          string `json:"field"`
				Message        string `json:"message"`
				DefaultMessage string `json:"defaultMessage"`
			}
			if err := json.Unmarshal(item, &fe); err == nil {
				msg := fe.Message
				if msg == "" {
					msg = fe.DefaultMessage
				}
				if msg != "" {
					fields = append(fields, FieldError{Field: fe.Field, Message: msg})
				}
				continue
			}
			if msg := rawMessageText(item); msg != "" {
				fields = append(fields, FieldError{Field: fmt.Sprintf("%03d", i), Message: msg})
			}
		}
	}

	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Field < fields[j].Field })
	return fields
}

// rawMessageText は文字列または文字列配列のJSON値をテキストにする。
func rawMessageText(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var ss []string
	if err := json.Unmarshal(v, &ss); err == nil {
		return strings.Join(ss, " ")
	}
	return ""
}
