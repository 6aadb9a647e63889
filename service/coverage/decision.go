/*
 * @module service/coverage/decision
 * @description 分配决策：选出候选主网络，应用阈值与回退策略，标记是否需要人工复核
 * @architecture 领域服务 - 纯函数
 * @stateFlow 计分结果 + 设置 -> 候选网络 -> 阈值判断 -> 决策
 * @rules 平局先比匹配数，再比网络标识字典序，保证结果可复现
 * @dependencies 无
 * @refs service/coverage/scorer.go, service/coverage/settings.go
 */

package coverage

import (
	"sort"
)

// FallbackCoverage 回退网络按合同保证覆盖全体成员，展示覆盖率固定为100%
const FallbackCoverage = 1.0

// Decision 决策结果
type Decision struct {
	PrimaryNetwork     string  `json:"primary_network"`
	CandidateNetwork   string  `json:"candidate_network,omitempty"`
	CandidateFraction  float64 `json:"candidate_fraction"`
	CoveragePercentage float64 `json:"coverage_percentage"`
	FallbackUsed       bool    `json:"fallback_used"`
	ReviewRequired     bool    `json:"review_required"`
}

// Decide 根据设置做出主网络决策
func Decide(scored *Scored, settings AssignmentSettings) Decision {
	var d Decision

	ranked := RankNetworks(scored)
	if len(ranked) > 0 {
		d.CandidateNetwork = ranked[0]
		d.CandidateFraction = scored.Fraction(ranked[0])
	}

	if d.CandidateNetwork != "" && d.CandidateFraction >= settings.CoverageThreshold {
		d.PrimaryNetwork = d.CandidateNetwork
		d.CoveragePercentage = d.CandidateFraction
	} else {
		d.PrimaryNetwork = settings.DefaultNetwork
		d.FallbackUsed = true
		d.CoveragePercentage = FallbackCoverage
	}

	d.ReviewRequired = d.FallbackUsed || len(scored.InvalidRows) > 0 || scored.TotalValid == 0
	return d
}

// RankNetworks 返回匹配数非零的网络，按覆盖率降序、匹配数降序、标识升序排列
func RankNetworks(scored *Scored) []string {
	out := make([]string, 0, len(scored.MatchCount))
	for n, c := range scored.MatchCount {
		if c > 0 {
			out = append(out, n)
		}
	}
	sortByCoverage(out, scored)
	return out
}

func sortByCoverage(networks []string, scored *Scored) {
	sort.SliceStable(networks, func(i, j int) bool {
		a, b := networks[i], networks[j]
		fa, fb := scored.Fraction(a), scored.Fraction(b)
		if fa != fb {
			return fa > fb
		}
		ca, cb := scored.MatchCount[a], scored.MatchCount[b]
		if ca != cb {
			return ca > cb
		}
		return a < b
	})
}
