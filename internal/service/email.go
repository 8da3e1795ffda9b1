package service

import (
	"tempalias/backend/internal/domain"
	"tempalias/backend/internal/storage"
)

// EmailService 封装邮件读取、已读标记和删除。
type EmailService struct {
	aliases storage.AliasRepository
	emails  storage.EmailRepository
}

// NewEmailService 创建邮件业务服务。
func NewEmailService(aliases storage.AliasRepository, emails storage.EmailRepository) *EmailService {
	return &EmailService{aliases: aliases, emails: emails}
}

// ListByAlias 获取别名下的全部邮件，别名不存在时返回 storage.ErrAliasNotFound。
func (s *EmailService) ListByAlias(aliasID string) ([]domain.Email, error) {
	if _, err := s.aliases.GetAliasByID(aliasID); err != nil {
		return nil, err
	}
	return s.emails.GetEmailsByAliasID(aliasID)
}

// Get 获取单封邮件。
func (s *EmailService) Get(id string) (*domain.Email, error) {
	return s.emails.GetEmailByID(id)
}

// MarkRead 标记邮件为已读，邮件不存在时返回 storage.ErrEmailNotFound。
func (s *EmailService) MarkRead(id string) error {
	if _, err := s.emails.GetEmailByID(id); err != nil {
		return err
	}
	return s.emails.MarkEmailAsRead(id)
}

// Delete 删除邮件，邮件不存在时返回 storage.ErrEmailNotFound。
func (s *EmailService) Delete(id string) error {
	if _, err := s.emails.GetEmailByID(id); err != nil {
		return err
	}
	return s.emails.DeleteEmail(id)
}
