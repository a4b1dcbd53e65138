package strategy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"tunix/internal/logger"
)

// paramsSchema 约束参数文件的字段类型与下限。字段都是可选的，
// 缺省字段由主配置兜底。
const paramsSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "timeframe": {"type": "string", "minLength": 2},
    "rsi_len": {"type": "integer", "minimum": 2},
    "atr_len": {"type": "integer", "minimum": 2},
    "breakout_lookback": {"type": "integer", "minimum": 1},
    "rsi_buy": {"type": "number", "exclusiveMinimum": 0, "maximum": 100},
    "rsi_sell": {"type": "number", "exclusiveMinimum": 0, "maximum": 100},
    "exit_rsi": {"type": "number", "exclusiveMinimum": 0, "maximum": 100},
    "exit_rsi_short": {"type": "number", "exclusiveMinimum": 0, "maximum": 100},
    "stop_mult": {"type": "number", "exclusiveMinimum": 0},
    "limit_mult": {"type": "number", "exclusiveMinimum": 0},
    "atr_mult": {"type": "number", "exclusiveMinimum": 0}
  }
}`

// ChangeListener 在参数热更新成功后触发。
type ChangeListener func(Params)

// Registry 管理可热更新的策略参数文件。文件不合法时保留上一份
// 有效参数，交易循环永远能拿到可用的快照。
type Registry struct {
	path     string
	fallback Params
	schema   *jsonschema.Schema
	v        *viper.Viper

	mu        sync.RWMutex
	current   Params
	version   int64
	loadedAt  time.Time
	listeners []ChangeListener
}

// NewRegistry 加载参数文件并开始监听变更。path 为空表示不使用参数
// 文件，直接以 fallback 作为固定参数。
func NewRegistry(path string, fallback Params) (*Registry, error) {
	if err := fallback.Validate(); err != nil {
		return nil, fmt.Errorf("兜底策略参数不合法: %w", err)
	}
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	r := &Registry{
		path:     strings.TrimSpace(path),
		fallback: fallback,
		schema:   schema,
		current:  fallback,
		version:  1,
		loadedAt: time.Now(),
	}
	if r.path == "" {
		return r, nil
	}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(r.path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取策略参数文件失败: %w", err)
	}
	v.OnConfigChange(func(fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("策略参数热更新失败，沿用旧参数: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	r.v = v
	return r, nil
}

// Params 返回当前参数快照。
func (r *Registry) Params() Params {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Version 返回参数版本号，每次成功重载递增。
func (r *Registry) Version() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// OnChange 注册热更新回调。
func (r *Registry) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) reload() error {
	fileParams, err := readParamsFile(r.path, r.schema)
	if err != nil {
		return err
	}
	merged := merge(r.fallback, fileParams)
	if err := merged.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.current = merged
	r.version++
	r.loadedAt = time.Now()
	r.mu.Unlock()
	logger.Infof("策略参数已加载: %s (timeframe=%s rsi_buy=%.1f rsi_sell=%.1f)",
		filepath.Base(r.path), merged.Timeframe, merged.RSIBuy, merged.RSISell)
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	params := r.current
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Errorf("策略参数回调 panic: %v", rec)
				}
			}()
			cb(params)
		}(fn)
	}
}

func compileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("params.json", strings.NewReader(paramsSchema)); err != nil {
		return nil, fmt.Errorf("注册参数 schema 失败: %w", err)
	}
	schema, err := compiler.Compile("params.json")
	if err != nil {
		return nil, fmt.Errorf("编译参数 schema 失败: %w", err)
	}
	return schema, nil
}

func readParamsFile(path string, schema *jsonschema.Schema) (Params, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Params{}, fmt.Errorf("读取策略参数文件失败: %w", err)
	}

	// 先以宽松结构过 schema，再严格映射到 Params。
	var generic map[string]any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return Params{}, fmt.Errorf("解析策略参数文件失败: %w", err)
	}
	if generic == nil {
		generic = map[string]any{}
	}
	// schema 校验要求 JSON 解码出的值类型，YAML 结果先过一次 JSON。
	jsonRaw, err := json.Marshal(generic)
	if err != nil {
		return Params{}, fmt.Errorf("序列化策略参数失败: %w", err)
	}
	var jsonView any
	if err := json.Unmarshal(jsonRaw, &jsonView); err != nil {
		return Params{}, fmt.Errorf("解析策略参数失败: %w", err)
	}
	if err := schema.Validate(jsonView); err != nil {
		return Params{}, fmt.Errorf("策略参数 schema 校验失败: %w", err)
	}

	var out Params
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return Params{}, fmt.Errorf("映射策略参数失败: %w", err)
	}
	return out, nil
}
