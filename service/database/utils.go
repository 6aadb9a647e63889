package database

import (
	"fmt"
	"log"

	"gorm.io/gorm"
)

// CheckSchemaExists 检查schema是否存在
func CheckSchemaExists(db *gorm.DB, schemaName string) bool {
	var count int64
	db.Raw("SELECT COUNT(*) FROM information_schema.schemata WHERE schema_name = ?", schemaName).Scan(&count)
	return count > 0
}

// EnsureSchema schema不存在时创建（仅PostgreSQL）
func EnsureSchema(db *gorm.DB, schemaName string) error {
	if schemaName == "" || schemaName == "public" || CheckSchemaExists(db, schemaName) {
		return nil
	}

	log.Printf("开始创建 schema: %s", schemaName)
	// 使用双引号避免保留关键字问题
	createSchemaSQL := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS \"%s\";", schemaName)
	if err := db.Exec(createSchemaSQL).Error; err != nil {
		return fmt.Errorf("创建 schema %s 失败: %w", schemaName, err)
	}
	log.Printf("成功创建 schema: %s", schemaName)
	return nil
}
