package trader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

const (
	statsFileName      = "stats.json"
	notifiedFileName   = "notified_orders.json"
	entryTypesFileName = "entry_types.json"
)

// Ledger 持有需要跨重启存活的三份小账本：胜负计数、已通知的平仓单
// 集合、positionId 到入场类型的映射。每次变更整文件原子重写
// （临时文件 + rename），崩溃后不会读到半截 JSON。
type Ledger struct {
	dir string

	mu         sync.Mutex
	stats      statsRecord
	notified   map[string]struct{}
	entryTypes map[string]EntryType
}

type statsRecord struct {
	Wins   int `json:"win_count"`
	Losses int `json:"loss_count"`
}

// OpenLedger 加载目录下的账本文件，缺失或损坏的文件按空账本处理。
func OpenLedger(dir string) (*Ledger, error) {
	if dir == "" {
		return nil, fmt.Errorf("账本目录不能为空")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建账本目录失败: %w", err)
	}
	l := &Ledger{
		dir:        dir,
		notified:   make(map[string]struct{}),
		entryTypes: make(map[string]EntryType),
	}

	readJSON(filepath.Join(dir, statsFileName), &l.stats)

	var ids []string
	readJSON(filepath.Join(dir, notifiedFileName), &ids)
	for _, id := range ids {
		if id != "" {
			l.notified[id] = struct{}{}
		}
	}

	readJSON(filepath.Join(dir, entryTypesFileName), &l.entryTypes)
	return l, nil
}

// Wins 返回累计盈利平仓次数。
func (l *Ledger) Wins() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats.Wins
}

func (l *Ledger) Losses() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats.Losses
}

// RecordResult 按已实现盈亏记一次胜负并落盘。只有拿到确切盈亏时
// 才调用，未知结果不计入统计。
func (l *Ledger) RecordResult(profit decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if profit.Sign() > 0 {
		l.stats.Wins++
	} else {
		l.stats.Losses++
	}
	return l.writeLocked(statsFileName, l.stats)
}

// IsNotified 判断平仓单是否已经推送过。
func (l *Ledger) IsNotified(orderID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.notified[orderID]
	return ok
}

// MarkNotified 记录平仓单已推送并落盘；重复标记是幂等操作。
func (l *Ledger) MarkNotified(orderID string) error {
	if orderID == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.notified[orderID]; ok {
		return nil
	}
	l.notified[orderID] = struct{}{}
	ids := make([]string, 0, len(l.notified))
	for id := range l.notified {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return l.writeLocked(notifiedFileName, ids)
}

// EntryType 查询仓位的入场类型。
func (l *Ledger) EntryType(positionID string) (EntryType, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	et, ok := l.entryTypes[positionID]
	return et, ok
}

// SetEntryType 记录仓位入场类型并落盘。
func (l *Ledger) SetEntryType(positionID string, et EntryType) error {
	if positionID == "" {
		return fmt.Errorf("positionId 不能为空")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entryTypes[positionID] = et
	return l.writeLocked(entryTypesFileName, l.entryTypes)
}

// RemoveEntryType 在仓位平掉后清理映射。
func (l *Ledger) RemoveEntryType(positionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entryTypes[positionID]; !ok {
		return nil
	}
	delete(l.entryTypes, positionID)
	return l.writeLocked(entryTypesFileName, l.entryTypes)
}

func (l *Ledger) writeLocked(name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("序列化账本 %s 失败: %w", name, err)
	}
	target := filepath.Join(l.dir, name)
	tmp, err := os.CreateTemp(l.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("创建账本临时文件失败: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("写入账本 %s 失败: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("关闭账本临时文件失败: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("替换账本 %s 失败: %w", name, err)
	}
	return nil
}

// readJSON 尽力加载一份账本文件，读不到或解析失败就保持零值。
func readJSON(path string, v any) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return
	}
	_ = json.Unmarshal(raw, v)
}
