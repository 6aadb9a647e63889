/*
 * @module service/coverage/run
 * @description 组装分配运行结果：计分 -> 决策 -> 汇总 -> 说明文字
 * @architecture 领域服务 - 纯函数
 * @stateFlow 名单 + 目录快照 + 设置 -> AssignmentRun（未持久化，ID与时间由存储层填充）
 * @rules 空名单或全部无效行返回InsufficientDataError；设置非法视为编程错误
 * @dependencies golang.org/x/text/message
 * @refs service/assignment/assignment_service.go
 */

package coverage

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// BuildRun 计算一次分配运行
func BuildRun(quoteID string, members []MemberRow, catalog *NetworkCatalog, settings AssignmentSettings, kind ResultKind) (*AssignmentRun, error) {
	if len(members) == 0 {
		return nil, &InsufficientDataError{QuoteID: quoteID}
	}
	settings.mustValidate(catalog)

	scored := Score(members, catalog)
	if scored.TotalValid == 0 {
		return nil, &InsufficientDataError{
			QuoteID:      quoteID,
			TotalRows:    len(members),
			InvalidCount: len(scored.InvalidRows),
		}
	}

	decision := Decide(scored, settings)

	result := Result{
		Kind: ResultKindThreshold,
		GroupSummary: GroupSummary{
			PrimaryNetwork:     decision.PrimaryNetwork,
			CoveragePercentage: decision.CoveragePercentage,
			FallbackUsed:       decision.FallbackUsed,
			ReviewRequired:     decision.ReviewRequired,
			TotalMembers:       scored.TotalValid,
			InvalidRows:        scored.InvalidRows,
		},
		CoverageByNetwork: scored.CoverageByNetwork(),
		MemberAssignments: scored.MemberAssignments,
	}
	if kind == ResultKindRanked {
		result.Kind = ResultKindRanked
		result.RankedResult = &RankedResult{
			RankedContracts: rankContracts(scored, settings),
			MemberFit:       memberFit(scored, decision.PrimaryNetwork),
		}
	}

	return &AssignmentRun{
		QuoteID:        quoteID,
		Mode:           result.Kind,
		Result:         result,
		Recommendation: decision.PrimaryNetwork,
		Confidence:     decision.CandidateFraction,
		Rationale:      rationale(scored, decision, settings),
	}, nil
}

func rationale(scored *Scored, d Decision, settings AssignmentSettings) string {
	p := message.NewPrinter(language.English)

	// BuildRun已拒绝无有效行的名单，回退时必然存在候选网络
	var b strings.Builder
	if d.FallbackUsed {
		b.WriteString(p.Sprintf("Fallback network %s applied: best direct match %s covered only %s of members, below the %s threshold",
			d.PrimaryNetwork, d.CandidateNetwork, FormatPercent(d.CandidateFraction),
			FormatPercent(settings.CoverageThreshold)))
	} else {
		b.WriteString(p.Sprintf("Primary network %s selected by direct ZIP coverage of %s (%d of %d members)",
			d.PrimaryNetwork, FormatPercent(d.CandidateFraction),
			scored.MatchCount[d.PrimaryNetwork], scored.TotalValid))
	}

	if n := len(scored.InvalidRows); n > 0 {
		noun := "rows"
		if n == 1 {
			noun = "row"
		}
		b.WriteString(p.Sprintf("; %d %s had unmapped ZIP codes and need review", n, noun))
	}
	return b.String()
}

// FormatPercent 格式化百分比，最多保留一位小数
func FormatPercent(f float64) string {
	v := math.Round(f*1000) / 10
	return strconv.FormatFloat(v, 'f', -1, 64) + "%"
}
