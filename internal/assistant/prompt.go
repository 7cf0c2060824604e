package assistant

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TicketMarker 模型在生成工单文本时要求加在行首的标记
const TicketMarker = "[TICKET]"

// NameAndPatronymic 从ФИО中提取名和父称
// 三段及以上视为 姓 名 父称，两段视为 姓 名，否则原样返回
func NameAndPatronymic(fio string) string {
	fio = strings.TrimSpace(fio)
	if fio == "" {
		return ""
	}
	parts := strings.Fields(fio)
	switch {
	case len(parts) >= 3:
		return parts[1] + " " + parts[2]
	case len(parts) == 2:
		return parts[1]
	default:
		return fio
	}
}

// ParseTicket 检测并剥离工单标记
// 仅当标记位于回复开头时视为工单
func ParseTicket(reply string) (string, bool) {
	if !strings.HasPrefix(reply, TicketMarker) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(reply, TicketMarker)), true
}

// promptInput 系统提示词的构建参数
type promptInput struct {
	Employee         interface{}
	Device           interface{}
	NameAndPatronymic string
	FirstMessage     bool
	DocumentContext  string
}

// buildSystemPrompt 构建俄文系统提示词
// 首条消息要求按名和父称问候，文档上下文仅在非空时注入
func buildSystemPrompt(in promptInput) string {
	employeeJSON, _ := json.Marshal(in.Employee)
	deviceJSON, _ := json.Marshal(in.Device)

	var b strings.Builder
	b.WriteString("Ты — AI-помощник по ИТ-оборудованию.\n")

	if in.FirstMessage && in.NameAndPatronymic != "" {
		fmt.Fprintf(&b, "В первом сообщении ОБЯЗАТЕЛЬНО поприветствуй пользователя по имени и отчеству: \"%s\". "+
			"Используй формат: \"Здравствуйте, %s!\" или \"Добро пожаловать, %s!\". "+
			"Затем кратко представься как AI-помощник и расскажи, что можешь помочь по вопросам данного оборудования.\n",
			in.NameAndPatronymic, in.NameAndPatronymic, in.NameAndPatronymic)
	} else {
		b.WriteString("Отвечай на вопросы пользователя по оборудованию.\n")
	}

	fmt.Fprintf(&b, "\nИнформация о сотруднике: %s\n", employeeJSON)
	fmt.Fprintf(&b, "Информация об оборудовании: %s\n", deviceJSON)

	if strings.TrimSpace(in.DocumentContext) != "" {
		b.WriteString("\n=== ДОПОЛНИТЕЛЬНАЯ ИНФОРМАЦИЯ ИЗ ДОКУМЕНТОВ ===\n")
		b.WriteString(in.DocumentContext)
		b.WriteString("\n=== КОНЕЦ ДОПОЛНИТЕЛЬНОЙ ИНФОРМАЦИИ ===\n\n")
		b.WriteString("ИСПОЛЬЗУЙ ЭТУ ИНФОРМАЦИЮ для более точных ответов. " +
			"Если в загруженных документах есть релевантная информация, обязательно используй её в ответе.\n")
	}

	b.WriteString("\nИНСТРУКЦИИ:\n")
	b.WriteString("- Если в ответе нужно упомянуть CTC, всегда используй формулировку 'Коэффициент технического состояния'. Не используй сокращения или другие варианты.\n")
	b.WriteString("- Если вопрос не по этому оборудованию — вежливо сообщи, что можешь помочь только по нему, укажи реквизиты.\n")
	b.WriteString("- Если ctc < 20 — сообщи о необходимости плановой замены.\n")
	b.WriteString("- Если status != \"исправен\" — кратко опиши ситуацию.\n")
	b.WriteString("- Если нужно создать обращение, выведи текст обращения с маркером [TICKET] в начале строки.\n")
	b.WriteString("- Всегда используй базовое форматирование markdown: *курсив*, **жирный**, списки, разделители, чтобы ответы выглядели структурированно и современно.\n")
	b.WriteString("- Если есть информация из загруженных документов, используй её для более точных ответов.\n")
	b.WriteString("- Будь дружелюбным, но профессиональным. Используй вежливые обращения.\n")

	if in.FirstMessage && in.NameAndPatronymic != "" {
		fmt.Fprintf(&b, "- КРИТИЧЕСКИ ВАЖНО: Первое сообщение должно начинаться с персонального приветствия: \"Здравствуйте, %s!\" Это обязательное требование.\n", in.NameAndPatronymic)
	}

	return b.String()
}
