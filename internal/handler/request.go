package handler

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/libraryfront/internal/model"
)

// maxRequestBody はJSONリクエストボディの上限サイズ。
const maxRequestBody = 1 << 20

// decodeRequest はJSONまたはHTMLフォームのリクエストボディをvに読み込む。
// フォームの場合は各フィールドの最初の値をJSONのキーとして扱う。
func decodeRequest(w http.ResponseWriter, r *http.Request, v any) *model.APIError {
	if wantsJSON(r) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		if err := json.NewDecoder(r.Body).Decode(v); err != nil {
			return model.NewInvalidRequestError("corps JSON illisible")
		}
		return nil
	}

	if err := r.ParseForm(); err != nil {
		return model.NewInvalidRequestError("formulaire illisible")
	}
	fields := make(map[string]string, len(r.PostForm))
	for k, values := range r.PostForm {
		if len(values) > 0 {
			fields[k] = values[0]
		}
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return model.NewInvalidRequestError("formulaire illisible")
	}
	if err := json.Unmarshal(b, v); err != nil {
		return model.NewInvalidRequestError("formulaire illisible")
	}
	return nil
}
