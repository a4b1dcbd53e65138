package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeframeDuration 将 "1m"/"4h"/"1d" 这类周期字符串换算为 time.Duration。
// 只接受分钟/小时/天，K 线源不提供更细或更粗的粒度。
func TimeframeDuration(tf string) (time.Duration, error) {
	tf = strings.ToLower(strings.TrimSpace(tf))
	if len(tf) < 2 {
		return 0, fmt.Errorf("无效的时间周期: %q", tf)
	}
	n, err := strconv.Atoi(tf[:len(tf)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("无效的时间周期: %q", tf)
	}
	switch tf[len(tf)-1] {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("无效的时间周期: %q", tf)
}

// ValidTimeframe reports whether tf parses as a supported candle interval.
func ValidTimeframe(tf string) bool {
	_, err := TimeframeDuration(tf)
	return err == nil
}
