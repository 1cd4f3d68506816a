// Package stats 提供数值样本的统计计算与离群点检测
package stats

import "math"

// DefaultSigmaThreshold 默认离群判定阈值（3-sigma 规则）
const DefaultSigmaThreshold = 3.0

// Summary 样本统计摘要
type Summary struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

// Calculate 计算样本均值与总体标准差。
// 空样本返回 {0, 0}，单值样本返回 {value, 0}。
func Calculate(values []float64) Summary {
	n := len(values)
	if n == 0 {
		return Summary{}
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)

	var sqDiff float64
	for _, v := range values {
		d := v - mean
		sqDiff += d * d
	}

	return Summary{
		Mean:   mean,
		StdDev: math.Sqrt(sqDiff / float64(n)),
	}
}

// DetectSigmaOutliers 返回与均值距离超过 threshold 倍标准差的下标。
// threshold <= 0 时使用默认阈值；标准差为 0 的常量序列不产生离群点。
func DetectSigmaOutliers(values []float64, threshold float64) []int {
	if threshold <= 0 {
		threshold = DefaultSigmaThreshold
	}

	s := Calculate(values)
	if s.StdDev == 0 {
		return nil
	}

	var outliers []int
	for i, v := range values {
		if math.Abs(v-s.Mean) > threshold*s.StdDev {
			outliers = append(outliers, i)
		}
	}
	return outliers
}
