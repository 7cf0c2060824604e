package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/beego/beego/v2/server/web"
	"go.uber.org/zap"

	"github.com/equipdesk/backend-go/internal/auth"
	"github.com/equipdesk/backend-go/internal/database"
	apperrors "github.com/equipdesk/backend-go/internal/errors"
	"github.com/equipdesk/backend-go/internal/logger"
	"github.com/equipdesk/backend-go/internal/models"
)

// BaseController provides helpers for consistent JSON responses.
type BaseController struct {
	web.Controller
}

// JSON writes a JSON response with the supplied HTTP status code.
func (c *BaseController) JSON(status int, payload interface{}) {
	c.Ctx.Output.SetStatus(status)
	c.Data["json"] = payload
	c.ServeJSON()
}

// JSONSuccess writes a standard success envelope.
func (c *BaseController) JSONSuccess(data interface{}) {
	c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// JSONError writes an error envelope with message.
func (c *BaseController) JSONError(status int, message string) {
	c.JSON(status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// writeError 按错误类型写出响应
// AppError携带自己的HTTP码和用户可读消息，其余按500处理
func (c *BaseController) writeError(err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		c.JSON(appErr.HTTPCode, map[string]interface{}{
			"success": false,
			"error":   appErr.Message,
			"code":    appErr.Code,
		})
		return
	}

	logger.Error("unhandled request error",
		zap.String("path", c.Ctx.Request.RequestURI),
		zap.Error(err))
	c.JSONError(http.StatusInternalServerError, "Внутренняя ошибка сервера")
}

// requireEmployee 验证Bearer token并加载员工记录
// 失败时已写出401响应，调用方直接return即可
func (c *BaseController) requireEmployee() (*models.Employee, bool) {
	if jwtService == nil {
		c.JSONError(http.StatusInternalServerError, "Сервис авторизации не настроен")
		return nil, false
	}

	token, err := auth.ExtractTokenFromHeader(c.Ctx.Input.Header("Authorization"))
	if err != nil {
		c.JSONError(http.StatusUnauthorized, "Требуется авторизация")
		return nil, false
	}

	claims, err := jwtService.ValidateToken(token)
	if err != nil {
		c.JSONError(http.StatusUnauthorized, "Недействительный токен")
		return nil, false
	}

	var employee models.Employee
	if err := database.DB.First(&employee, claims.EmployeeID).Error; err != nil {
		c.JSONError(http.StatusUnauthorized, "Сотрудник не найден")
		return nil, false
	}
	return &employee, true
}

// mustParseUintParam 解析路径参数为uint
func (c *BaseController) mustParseUintParam(name string) (uint, bool) {
	raw := c.Ctx.Input.Param(name)
	value, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		c.JSONError(http.StatusBadRequest, "Некорректный идентификатор")
		return 0, false
	}
	return uint(value), true
}
