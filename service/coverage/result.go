package coverage

import (
	"fmt"
	"time"
)

// ResultKind 结果形态标签
type ResultKind string

const (
	// ResultKindThreshold 单阈值回退模式
	ResultKindThreshold ResultKind = "threshold"
	// ResultKindRanked 多合同排序模式
	ResultKindRanked ResultKind = "ranked"
)

// ParseResultKind 解析结果模式，空值默认为阈值模式
func ParseResultKind(s string) (ResultKind, error) {
	switch ResultKind(s) {
	case "", ResultKindThreshold:
		return ResultKindThreshold, nil
	case ResultKindRanked:
		return ResultKindRanked, nil
	default:
		return "", fmt.Errorf("unknown assignment mode %q", s)
	}
}

// GroupSummary 团体汇总
type GroupSummary struct {
	PrimaryNetwork     string       `json:"primary_network"`
	CoveragePercentage float64      `json:"coverage_percentage"`
	FallbackUsed       bool         `json:"fallback_used"`
	ReviewRequired     bool         `json:"review_required"`
	TotalMembers       int          `json:"total_members"`
	InvalidRows        []InvalidRow `json:"invalid_rows"`
}

// RankedContract 排序模式下的单个合同评分
type RankedContract struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
	Fit   string `json:"fit,omitempty"`
}

// MemberFit 成员匹配分布
type MemberFit struct {
	InNetwork    int `json:"in_network"`
	OutOfNetwork int `json:"out_of_network"`
	NoMatch      int `json:"no_match"`
}

// RankedResult 排序模式附加字段
type RankedResult struct {
	RankedContracts []RankedContract `json:"ranked_contracts"`
	MemberFit       MemberFit        `json:"member_fit"`
}

// Result 分配结果，Kind为判别标签；仅Kind为ranked时RankedResult非空
type Result struct {
	Kind              ResultKind         `json:"kind"`
	GroupSummary      GroupSummary       `json:"group_summary"`
	CoverageByNetwork map[string]float64 `json:"coverage_by_network"`
	MemberAssignments []MemberAssignment `json:"member_assignments"`
	*RankedResult
}

// Ranked 返回排序模式字段
func (r *Result) Ranked() (*RankedResult, bool) {
	if r.Kind != ResultKindRanked || r.RankedResult == nil {
		return nil, false
	}
	return r.RankedResult, true
}

// AssignmentRun 一次分配计算的不可变快照
type AssignmentRun struct {
	ID             string     `json:"id"`
	QuoteID        string     `json:"quote_id"`
	Mode           ResultKind `json:"mode"`
	Result         Result     `json:"result"`
	Recommendation string     `json:"recommendation"`
	Confidence     float64    `json:"confidence"`
	Rationale      string     `json:"rationale"`
	CreatedAt      time.Time  `json:"created_at"`
}
