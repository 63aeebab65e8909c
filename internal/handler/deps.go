package handler

import (
	"dmchat/internal/app/chat"
	"dmchat/internal/configs"
	"dmchat/internal/pkg/auth/session"
)

// AppDeps bundles the dependencies shared by the HTTP handlers.
type AppDeps struct {
	Coordinator *chat.Coordinator
	Config      *configs.AppConfig
	Auth        *session.Authenticator
}
