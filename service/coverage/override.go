/*
 * @module service/coverage/override
 * @description 手工网络覆盖解析：在读取时将报价的手工网络与最新运行结果合并为生效分配
 * @architecture 领域服务 - 只读投影
 * @stateFlow 手工网络 / 最新运行 -> 生效分配
 * @rules 手工网络优先于任何运行结果；不修改任何持久化状态
 * @dependencies 无
 * @refs service/assignment/assignment_service.go
 */

package coverage

// CoverageDisplayManual 手工网络的覆盖率展示文本
const CoverageDisplayManual = "Manual"

// EffectiveAssignment 生效分配
type EffectiveAssignment struct {
	Network         string   `json:"network,omitempty"`
	Assigned        bool     `json:"assigned"`
	IsManual        bool     `json:"is_manual"`
	CoverageDisplay string   `json:"coverage_display,omitempty"`
	Coverage        *float64 `json:"coverage,omitempty"`
	RunID           string   `json:"run_id,omitempty"`
}

// Resolve 解析生效网络；manualNetwork为nil或空串表示未设置，latest为nil表示尚无运行
func Resolve(manualNetwork *string, latest *AssignmentRun) EffectiveAssignment {
	if manualNetwork != nil && *manualNetwork != "" {
		return EffectiveAssignment{
			Network:         *manualNetwork,
			Assigned:        true,
			IsManual:        true,
			CoverageDisplay: CoverageDisplayManual,
		}
	}

	if latest == nil {
		return EffectiveAssignment{}
	}

	summary := latest.Result.GroupSummary
	coverage := summary.CoveragePercentage
	return EffectiveAssignment{
		Network:         summary.PrimaryNetwork,
		Assigned:        summary.PrimaryNetwork != "",
		CoverageDisplay: FormatPercent(coverage),
		Coverage:        &coverage,
		RunID:           latest.ID,
	}
}
