package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/equipdesk/backend-go/internal/config"
	"github.com/equipdesk/backend-go/internal/database"
	"github.com/equipdesk/backend-go/internal/logger"
	"github.com/equipdesk/backend-go/internal/models"
)

// AuthController 登录控制器
// 登录按工号（табельный номер）查询员工，无口令校验
type AuthController struct {
	BaseController
}

type loginRequest struct {
	TN string `json:"tn"`
}

// POST /api/auth/login
func (c *AuthController) Login() {
	var req loginRequest
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.JSONError(http.StatusBadRequest, "Некорректный формат запроса")
		return
	}

	tn := strings.TrimSpace(req.TN)
	if tn == "" {
		c.JSONError(http.StatusBadRequest, "Укажите табельный номер")
		return
	}

	employee, found := employeeFromCache(tn)
	if !found {
		err := database.DB.Preload("Devices").Where("tn = ?", tn).First(&employee).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				c.JSONError(http.StatusNotFound, "Сотрудник с таким табельным номером не найден")
				return
			}
			logger.Error("login lookup failed", zap.String("tn", tn), zap.Error(err))
			c.JSONError(http.StatusInternalServerError, "Ошибка при поиске сотрудника")
			return
		}
		cacheEmployee(tn, employee)
	}

	if jwtService == nil {
		c.JSONError(http.StatusInternalServerError, "Сервис авторизации не настроен")
		return
	}
	token, err := jwtService.GenerateToken(employee.ID, employee.TN, employee.FIO)
	if err != nil {
		logger.Error("token generation failed", zap.Uint("employee_id", employee.ID), zap.Error(err))
		c.JSONError(http.StatusInternalServerError, "Не удалось создать сессию")
		return
	}

	logger.Info("employee logged in", zap.Uint("employee_id", employee.ID), zap.String("tn", employee.TN))
	c.JSONSuccess(map[string]interface{}{
		"token":    token,
		"employee": employee,
		"devices":  employee.Devices,
	})
}

func employeeCacheKey(tn string) string {
	return fmt.Sprintf("employee:tn:%s", tn)
}

// employeeFromCache 从Redis读取员工缓存，未命中或Redis不可用时返回false
func employeeFromCache(tn string) (models.Employee, bool) {
	var employee models.Employee
	if database.RedisClient == nil {
		return employee, false
	}
	val, err := database.RedisClient.Get(context.Background(), employeeCacheKey(tn)).Result()
	if err != nil {
		if err != redis.Nil {
			logger.Warn("employee cache read failed", zap.String("tn", tn), zap.Error(err))
		}
		return employee, false
	}
	if err := json.Unmarshal([]byte(val), &employee); err != nil {
		return employee, false
	}
	return employee, true
}

func cacheEmployee(tn string, employee models.Employee) {
	if database.RedisClient == nil {
		return
	}
	data, err := json.Marshal(employee)
	if err != nil {
		return
	}
	ttl := 300
	if config.AppConfig != nil && config.AppConfig.Redis.TTL > 0 {
		ttl = config.AppConfig.Redis.TTL
	}
	if err := database.RedisClient.SetEx(context.Background(), employeeCacheKey(tn), string(data), time.Duration(ttl)*time.Second).Err(); err != nil {
		logger.Warn("employee cache write failed", zap.String("tn", tn), zap.Error(err))
	}
}
