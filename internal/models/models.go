package models

import "time"

// Employee 员工档案，登录时按工号（табельный номер）查询
type Employee struct {
	ID       uint   `gorm:"primaryKey;column:id" json:"id"`
	TN       string `gorm:"column:tn;size:20;uniqueIndex;not null" json:"tn" validate:"required"`
	Division string `gorm:"size:200" json:"division"`
	Position string `gorm:"size:200" json:"position"`
	FIO      string `gorm:"column:fio;size:200;not null" json:"fio" validate:"required"`
	Location string `gorm:"size:200" json:"location"`

	// 关系
	Devices []Device `gorm:"foreignKey:EmployeeID" json:"-"`
}

func (Employee) TableName() string {
	return "employees"
}

// Device 分配给员工的IT设备
type Device struct {
	ID            uint      `gorm:"primaryKey;column:id" json:"id"`
	EmployeeID    uint      `gorm:"column:employee_id;not null;index" json:"employee_id"`
	Nomenclature  string    `gorm:"size:200;not null" json:"nomenclature" validate:"required"`
	Model         string    `gorm:"size:200" json:"model"`
	SerialNumber  string    `gorm:"column:serial_number;size:100" json:"serialNumber"`
	DateOfReceipt time.Time `gorm:"column:date_of_receipt" json:"dateOfReceipt"`
	Status        string    `gorm:"size:50" json:"status"`
	CTC           int       `gorm:"column:ctc" json:"ctc" validate:"gte=0,lte=100"`
}

func (Device) TableName() string {
	return "devices"
}

// Document 上传文档的元数据记录
type Document struct {
	ID          uint      `gorm:"primaryKey;column:id" json:"id"`
	Filename    string    `gorm:"size:255;not null" json:"filename"`
	FileType    string    `gorm:"column:file_type;size:100" json:"file_type"`
	UploadDate  time.Time `gorm:"column:upload_date;not null" json:"upload_date"`
	Content     string    `gorm:"type:text" json:"content,omitempty"`
	ChunksCount int       `gorm:"column:chunks_count;default:0" json:"chunks_count"`

	// 关系
	Chunks []DocumentChunk `gorm:"foreignKey:DocumentID" json:"-"`
}

func (Document) TableName() string {
	return "documents"
}

// DocumentChunk 文档分块及其嵌入向量
// embedding与metadata以JSON文本存储，向量维度由生成模型决定
type DocumentChunk struct {
	ID         uint   `gorm:"primaryKey;column:id" json:"id"`
	DocumentID uint   `gorm:"column:document_id;not null;index" json:"document_id"`
	ChunkIndex int    `gorm:"column:chunk_index;not null" json:"chunk_index"`
	Content    string `gorm:"type:text;not null" json:"content"`
	Embedding  string `gorm:"type:json" json:"-"`
	Metadata   string `gorm:"type:json" json:"metadata,omitempty"`
}

func (DocumentChunk) TableName() string {
	return "document_chunks"
}
