package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/equipdesk/backend-go/internal/assistant"
	"github.com/equipdesk/backend-go/internal/database"
	"github.com/equipdesk/backend-go/internal/models"
)

// ChatController AI助手对话控制器
type ChatController struct {
	BaseController
}

type chatRequest struct {
	Message  string                     `json:"message"`
	History  []assistant.HistoryMessage `json:"history"`
	DeviceID uint                       `json:"device_id"`
}

// POST /api/chat
func (c *ChatController) Chat() {
	employee, ok := c.requireEmployee()
	if !ok {
		return
	}

	var req chatRequest
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.JSONError(http.StatusBadRequest, "Некорректный формат запроса")
		return
	}

	// 设备必须属于当前员工
	var device models.Device
	err := database.DB.Where("id = ? AND employee_id = ?", req.DeviceID, employee.ID).First(&device).Error
	if err != nil {
		c.JSONError(http.StatusNotFound, "Оборудование не найдено")
		return
	}

	result, err := assistantService.Chat(c.Ctx.Request.Context(), assistant.ChatRequest{
		Message:  req.Message,
		History:  req.History,
		Employee: employee,
		Device:   &device,
	})
	if err != nil {
		c.writeError(err)
		return
	}

	if result.HasTicket && eventProducer != nil {
		eventProducer.TicketCreated(employee.ID, device.ID, result.Ticket)
	}

	c.JSONSuccess(result)
}
