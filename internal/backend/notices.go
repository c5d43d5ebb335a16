package backend

import "github.com/hitoshi/libraryfront/internal/model"

// ユーザー向けの通知メッセージ。
const (
	MsgSessionExpired = "Session expirée. Veuillez vous reconnecter."
	MsgForbidden      = "Accès refusé. Vous n'avez pas les permissions nécessaires."
	MsgNotFound       = "Ressource introuvable."
	MsgValidation     = "Erreur de validation."
	MsgServer         = "Erreur serveur. Veuillez réessayer plus tard."
	MsgGeneric        = "Une erreur est survenue."
	MsgUnreachable    = "Impossible de contacter le serveur. Vérifiez votre connexion."
	MsgUnexpected     = "Une erreur inattendue est survenue."
)

// エラー通知は全てerrorレベルで積む。
const errorLevel = model.NoticeError

// noticesFor はエラーに対応する通知を返す。
func noticesFor(err error) []model.Notice {
	if IsSessionExpired(err) {
		return []model.Notice{{Level: errorLevel, Message: MsgSessionExpired}}
	}
	e, ok := AsError(err)
	if !ok {
		return []model.Notice{{Level: errorLevel, Message: MsgUnexpected}}
	}

	switch e.Kind {
	case KindTransport:
		return single(MsgUnreachable)
	case KindForbidden:
		return single(MsgForbidden)
	case KindNotFound:
		return single(MsgNotFound)
	case KindValidation:
		if len(e.Fields) > 0 {
			out := make([]model.Notice, 0, len(e.Fields))
			for _, f := range e.Fields {
				out = append(out, model.Notice{Level: errorLevel, Message: f.Message, Field: f.Field})
			}
			return out
		}
		return single(orDefault(e.Message, MsgValidation))
	case KindServer:
		return single(MsgServer)
	case KindUnauthorized, KindOther:
		return single(orDefault(e.Message, MsgGeneric))
	default:
		return single(MsgUnexpected)
	}
}

func single(msg string) []model.Notice {
	return []model.Notice{{Level: errorLevel, Message: msg}}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
