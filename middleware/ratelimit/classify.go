package ratelimit

import (
	"strings"

	"copilot-gateway/middleware/ratelimit/domain"
)

// Classify normaliza um path de requisição para a categoria de limite.
//
// Ids de recurso depois de /sessions/ são colapsados para um curinga, para que
// /api/chat/sessions/42 e /api/chat/sessions/43 dividam o mesmo balde do pai.
// Qualquer path fora dos prefixos conhecidos cai na categoria default —
// inclusive os demais paths de /api/auth (ex: /api/auth/me).
func Classify(path string) domain.Category {
	if i := strings.Index(path, "/sessions/"); i >= 0 {
		path = path[:i] + "/sessions/*"
	}

	switch {
	case strings.HasPrefix(path, "/api/chat"):
		if strings.Contains(path, "stream") {
			return domain.CategoryChatStream
		}
		return domain.CategoryChat
	case strings.HasPrefix(path, "/api/auth"):
		if strings.Contains(path, "login") {
			return domain.CategoryLogin
		}
		if strings.Contains(path, "register") {
			return domain.CategoryRegister
		}
	}

	return domain.CategoryDefault
}
