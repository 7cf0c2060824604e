package router

import (
	"github.com/beego/beego/v2/server/web"

	"github.com/equipdesk/backend-go/app/controllers"
	"github.com/equipdesk/backend-go/internal/config"
	"github.com/equipdesk/backend-go/internal/metrics"
)

// Init registers all routes. Must be called after controllers.Wire.
func Init() {
	web.Router("/", &controllers.RootController{}, "get:Index")
	web.Router("/health", &controllers.HealthController{}, "get:Health")

	if config.AppConfig.Metrics.Enabled {
		web.Handler("/metrics", metrics.Handler())
	}

	web.Router("/api/auth/login", &controllers.AuthController{}, "post:Login")

	deviceController := &controllers.DeviceController{}
	web.Router("/api/devices", deviceController, "get:List")
	web.Router("/api/devices/:id", deviceController, "get:Get")

	// 注意：具体路由必须在参数路由之前，否则/status会被:id匹配
	documentController := &controllers.DocumentController{}
	web.Router("/api/documents", documentController, "get:List;post:Upload")
	web.Router("/api/documents/status", documentController, "get:Status")
	web.Router("/api/documents/uploads/:upload_id", documentController, "get:UploadStatus")
	web.Router("/api/documents/:id", documentController, "delete:Delete")

	web.Router("/api/chat", &controllers.ChatController{}, "post:Chat")
}
