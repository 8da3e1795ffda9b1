package sqlstore

import (
	"fmt"
	"slices"

	"gorm.io/gorm"
)

// hasCamelCaseLayout 判断 SQLite 库是否为旧版 Node 服务创建的驼峰列结构
func hasCamelCaseLayout(db *gorm.DB) (bool, error) {
	for table, column := range map[string]string{"aliases": "expiresAt", "emails": "aliasId"} {
		var columns []string
		if err := db.Raw("SELECT name FROM pragma_table_info(?)", table).Scan(&columns).Error; err != nil {
			return false, fmt.Errorf("failed to inspect table %s: %w", table, err)
		}
		if !slices.Contains(columns, column) {
			return false, nil
		}
	}
	return true, nil
}

// importCamelCaseLayout 把旧版驼峰结构转换为初始迁移的结构，数据原样保留
func (s *Store) importCamelCaseLayout() error {
	if s.dialect != "sqlite" {
		return nil
	}
	found, err := hasCamelCaseLayout(s.db)
	if err != nil || !found {
		return err
	}

	content, err := migrationFS.ReadFile("migrations/sqlite/camelcase_import.sql")
	if err != nil {
		return err
	}

	if err := s.db.Exec("PRAGMA foreign_keys = OFF").Error; err != nil {
		return err
	}
	defer s.db.Exec("PRAGMA foreign_keys = ON")

	err = s.db.Transaction(func(tx *gorm.DB) error {
		for _, stmt := range splitStatements(string(content)) {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("%w\nSQL: %s", err, stmt)
			}
		}
		return checkForeignKeys(tx)
	})
	if err != nil {
		return fmt.Errorf("failed to import camelCase schema: %w", err)
	}
	return nil
}
