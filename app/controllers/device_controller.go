package controllers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/equipdesk/backend-go/internal/database"
	"github.com/equipdesk/backend-go/internal/logger"
	"github.com/equipdesk/backend-go/internal/models"
)

// DeviceController 设备查询控制器
type DeviceController struct {
	BaseController
}

// GET /api/devices
// 返回当前员工名下的设备列表
func (c *DeviceController) List() {
	employee, ok := c.requireEmployee()
	if !ok {
		return
	}

	var devices []models.Device
	err := database.DB.Where("employee_id = ?", employee.ID).Order("id").Find(&devices).Error
	if err != nil {
		logger.Error("device list failed", zap.Uint("employee_id", employee.ID), zap.Error(err))
		c.JSONError(http.StatusInternalServerError, "Ошибка при получении списка оборудования")
		return
	}

	c.JSONSuccess(devices)
}

// GET /api/devices/:id
func (c *DeviceController) Get() {
	employee, ok := c.requireEmployee()
	if !ok {
		return
	}
	deviceID, ok := c.mustParseUintParam(":id")
	if !ok {
		return
	}

	var device models.Device
	err := database.DB.Where("id = ? AND employee_id = ?", deviceID, employee.ID).First(&device).Error
	if err != nil {
		c.JSONError(http.StatusNotFound, "Оборудование не найдено")
		return
	}

	c.JSONSuccess(device)
}
