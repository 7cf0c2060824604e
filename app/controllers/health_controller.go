package controllers

import (
	"net/http"

	"github.com/equipdesk/backend-go/internal/database"
)

// RootController 根控制器
type RootController struct {
	BaseController
}

func (c *RootController) Index() {
	c.JSONSuccess(map[string]string{
		"service": "equipdesk-assistant",
		"status":  "running",
	})
}

// HealthController 健康检查控制器
type HealthController struct {
	BaseController
}

// GET /health
func (c *HealthController) Health() {
	checks := map[string]bool{
		"database": false,
		"redis":    false,
		"ai":       assistantService != nil && assistantService.Ready(),
	}

	if database.DB != nil {
		if sqlDB, err := database.DB.DB(); err == nil && sqlDB.Ping() == nil {
			checks["database"] = true
		}
	}
	if database.RedisClient != nil {
		if err := database.RedisClient.Ping(c.Ctx.Request.Context()).Err(); err == nil {
			checks["redis"] = true
		}
	}

	status := http.StatusOK
	if !checks["database"] {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, map[string]interface{}{
		"status": map[bool]string{true: "ok", false: "degraded"}[checks["database"]],
		"checks": checks,
	})
}
