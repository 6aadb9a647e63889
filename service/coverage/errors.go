package coverage

import (
	"errors"
	"fmt"
)

// ErrInsufficientData 名单为空或全部为无效行
var ErrInsufficientData = errors.New("cannot assign network without member data")

// InsufficientDataError 缺少可计算的成员数据，不会持久化任何运行记录
type InsufficientDataError struct {
	QuoteID      string
	TotalRows    int
	InvalidCount int
}

func (e *InsufficientDataError) Error() string {
	if e.TotalRows == 0 {
		return fmt.Sprintf("%v: quote %s has an empty census", ErrInsufficientData, e.QuoteID)
	}
	return fmt.Sprintf("%v: all %d census rows of quote %s have unmapped ZIP codes",
		ErrInsufficientData, e.TotalRows, e.QuoteID)
}

// Is 支持 errors.Is(err, ErrInsufficientData)
func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}
