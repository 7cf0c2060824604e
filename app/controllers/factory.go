package controllers

import (
	"github.com/equipdesk/backend-go/internal/assistant"
	"github.com/equipdesk/backend-go/internal/auth"
	"github.com/equipdesk/backend-go/internal/events"
	"github.com/equipdesk/backend-go/internal/rag"
)

// Deps 控制器依赖集合，由bootstrap在启动时装配
type Deps struct {
	JWT       *auth.JWTService
	Store     *rag.Store
	Pipeline  *rag.Pipeline
	Assistant *assistant.Service
	Progress  *rag.ProgressTracker
	Events    *events.Producer
}

// Beego按类型反射创建controller实例，依赖走包级单例
var (
	jwtService       *auth.JWTService
	documentStore    *rag.Store
	ingestPipeline   *rag.Pipeline
	assistantService *assistant.Service
	progressTracker  *rag.ProgressTracker
	eventProducer    *events.Producer
)

// Wire 注入控制器依赖，必须在路由注册前调用
func Wire(deps Deps) {
	jwtService = deps.JWT
	documentStore = deps.Store
	ingestPipeline = deps.Pipeline
	assistantService = deps.Assistant
	progressTracker = deps.Progress
	eventProducer = deps.Events
}
