package security

import (
	"strings"
	"testing"
	"unicode/utf8"
)

// TestSanitize_StripsMarkup はタグが除去されテキストのみが残ることを検証する。
func TestSanitize_StripsMarkup(t *testing.T) {
	sanitizer := NewNoticeSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "プレーンテキストはそのまま",
			input: "Ressource introuvable.",
			want:  "Ressource introuvable.",
		},
		{
			name:  "アポストロフィはエスケープされない",
			input: "Vous n'avez pas les permissions nécessaires.",
			want:  "Vous n'avez pas les permissions nécessaires.",
		},
		{
			name:  "scriptタグは内容ごと除去される",
			input: `Erreur<script>alert("x")</script>`,
			want:  "Erreur",
		},
		{
			name:  "装飾タグはテキストを残して除去される",
			input: "<b>Email</b> déjà utilisé",
			want:  "Email déjà utilisé",
		},
		{
			name:  "イベント属性付きのimgは除去される",
			input: `<img src=x onerror="alert(1)">Nom invalide`,
			want:  "Nom invalide",
		},
		{
			name:  "空白は1つにまとめられる",
			input: "  Mot de passe\n\t trop   court  ",
			want:  "Mot de passe trop court",
		},
		{
			name:  "空文字列",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitize_TruncatesLongMessages は長いメッセージが切り詰められることを検証する。
func TestSanitize_TruncatesLongMessages(t *testing.T) {
	sanitizer := NewNoticeSanitizer()

	got := sanitizer.Sanitize(strings.Repeat("é", maxNoticeRunes+50))
	if n := utf8.RuneCountInString(got); n != maxNoticeRunes+1 {
		t.Errorf("rune count = %d, want %d", n, maxNoticeRunes+1)
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("truncated message should end with ellipsis: %q", got[len(got)-10:])
	}
}

// TestSanitize_Idempotent は同一入力に対して同一出力を返すことを検証する。
func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewNoticeSanitizer()
	input := `<p>Champ <em>email</em> invalide</p>`

	first := sanitizer.Sanitize(input)
	second := sanitizer.Sanitize(first)
	if first != second {
		t.Errorf("not idempotent: %q then %q", first, second)
	}
}
