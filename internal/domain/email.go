package domain

import "time"

// 解析入站邮件时的缺省值
const (
	UnknownSender  = "unknown@sender.com"
	DefaultSubject = "(No subject)"
)

// Email 表示别名收到的一封邮件。
//
// BodyText / BodyHTML 为 nil 表示原始邮件中没有对应正文，空字符串表示正文存在但为空。
// Raw 为原始报文的 base64 编码。
type Email struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	AliasID    string    `json:"aliasId" gorm:"column:alias_id;index"`
	From       string    `json:"from" gorm:"column:from_address"`
	To         string    `json:"to" gorm:"column:to_address"`
	Subject    string    `json:"subject" gorm:"column:subject"`
	BodyText   *string   `json:"bodyText" gorm:"column:body_text"`
	BodyHTML   *string   `json:"bodyHtml" gorm:"column:body_html"`
	ReceivedAt time.Time `json:"receivedAt" gorm:"column:received_at"`
	Read       bool      `json:"read" gorm:"column:is_read"`
	Raw        string    `json:"raw" gorm:"column:raw"`
}

// TableName 固定表名
func (Email) TableName() string {
	return "emails"
}

// NewEmail 创建邮件所需的字段，ID、接收时间和已读状态由存储层填充
type NewEmail struct {
	AliasID  string
	From     string
	To       string
	Subject  string
	BodyText *string
	BodyHTML *string
	Raw      string
}
