package models

import (
	"coverage-service/service/coverage"
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// AssignmentResult 分配运行的结构化结果列
type AssignmentResult coverage.Result

func scanJSON(value interface{}, dest interface{}) error {
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("类型断言失败: 不是 []byte 或 string")
	}
	return json.Unmarshal(bytes, dest)
}

// Scan 实现 Scanner 接口
func (r *AssignmentResult) Scan(value interface{}) error {
	if value == nil {
		*r = AssignmentResult{}
		return nil
	}
	return scanJSON(value, r)
}

// Value 实现 Valuer 接口
func (r AssignmentResult) Value() (driver.Value, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
