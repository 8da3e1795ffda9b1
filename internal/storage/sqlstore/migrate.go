package sqlstore

import (
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"tempalias/backend/internal/domain"
)

//go:embed migrations
var migrationFS embed.FS

// migration 一个有序的结构变更
type migration struct {
	version int
	name    string
	// rebuildsTables 为 true 时 SQLite 需要在事务外关闭外键约束，避免重建表时级联删除邮件
	rebuildsTables bool
	// satisfied 检查目标结构是否已存在，存在时只记录版本号
	satisfied func(m gorm.Migrator) bool
}

var migrations = []migration{
	{version: 1, name: "legacy_schema"},
	{
		version:        2,
		name:           "permanent_aliases",
		rebuildsTables: true,
		satisfied: func(m gorm.Migrator) bool {
			return m.HasColumn(&domain.Alias{}, "is_permanent")
		},
	},
}

// schemaMigration 已应用迁移的记录
type schemaMigration struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"type:varchar(128);not null"`
	AppliedAt time.Time `gorm:"not null"`
}

func (schemaMigration) TableName() string {
	return "schema_migrations"
}

// MigrationState 迁移状态，AppliedAt 为 nil 表示尚未应用
type MigrationState struct {
	Version   int
	Name      string
	AppliedAt *time.Time
}

// Migrate 按版本顺序应用所有未执行的迁移，重复执行是安全的
func (s *Store) Migrate() error {
	if err := s.importCamelCaseLayout(); err != nil {
		return err
	}
	if err := s.db.AutoMigrate(&schemaMigration{}); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	applied, err := s.appliedVersions()
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if _, ok := applied[m.version]; ok {
			continue
		}
		if err := s.apply(m); err != nil {
			return fmt.Errorf("migration %04d_%s: %w", m.version, m.name, err)
		}
	}
	return nil
}

// MigrationStatus 返回每个已知迁移的应用状态
func (s *Store) MigrationStatus() ([]MigrationState, error) {
	applied := map[int]time.Time{}
	if s.db.Migrator().HasTable(&schemaMigration{}) {
		var err error
		if applied, err = s.appliedVersions(); err != nil {
			return nil, err
		}
	}

	states := make([]MigrationState, 0, len(migrations))
	for _, m := range migrations {
		state := MigrationState{Version: m.version, Name: m.name}
		if at, ok := applied[m.version]; ok {
			state.AppliedAt = &at
		}
		states = append(states, state)
	}
	return states, nil
}

func (s *Store) appliedVersions() (map[int]time.Time, error) {
	var rows []schemaMigration
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	applied := make(map[int]time.Time, len(rows))
	for _, row := range rows {
		applied[row.Version] = row.AppliedAt
	}
	return applied, nil
}

// apply 在单个事务内执行一个迁移并写入版本记录
//
// MySQL 的 DDL 会隐式提交，因此在 MySQL 上只有版本记录受事务保护。
func (s *Store) apply(m migration) error {
	var stmts []string
	if m.satisfied == nil || !m.satisfied(s.db.Migrator()) {
		content, err := migrationFS.ReadFile(fmt.Sprintf("migrations/%s/%04d_%s.sql", s.dialect, m.version, m.name))
		if err != nil {
			return fmt.Errorf("no migration file for %s: %w", s.dialect, err)
		}
		stmts = splitStatements(string(content))
	}

	if len(stmts) > 0 && m.rebuildsTables && s.dialect == "sqlite" {
		// PRAGMA foreign_keys 在事务内无效
		if err := s.db.Exec("PRAGMA foreign_keys = OFF").Error; err != nil {
			return err
		}
		defer s.db.Exec("PRAGMA foreign_keys = ON")
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, stmt := range stmts {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("%w\nSQL: %s", err, stmt)
			}
		}
		if len(stmts) > 0 && m.rebuildsTables && s.dialect == "sqlite" {
			if err := checkForeignKeys(tx); err != nil {
				return err
			}
		}
		return tx.Create(&schemaMigration{
			Version:   m.version,
			Name:      m.name,
			AppliedAt: s.now(),
		}).Error
	})
}

// checkForeignKeys 重建表后确认没有悬空的外键引用
func checkForeignKeys(tx *gorm.DB) error {
	rows, err := tx.Raw("PRAGMA foreign_key_check").Rows()
	if err != nil {
		return err
	}
	defer rows.Close()
	if rows.Next() {
		return errors.New("foreign key check failed after table rebuild")
	}
	return rows.Err()
}

// splitStatements 分割SQL语句（按分号分割，忽略字符串中的分号和行注释）
func splitStatements(sql string) []string {
	var statements []string
	var current strings.Builder
	var inString, inComment bool
	var stringChar rune

	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	runes := []rune(sql)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case inComment:
			if r == '\n' {
				inComment = false
				current.WriteRune(r)
			}
		case inString:
			current.WriteRune(r)
			if r == stringChar {
				inString = false
			}
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			inComment = true
			i++
		case r == '\'' || r == '"' || r == '`':
			inString = true
			stringChar = r
			current.WriteRune(r)
		case r == ';':
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()

	return statements
}
