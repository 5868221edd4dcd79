package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// profile 是压测使用的锁参数配置。
// 未给出的字段取 xshardlock 的默认值语义: R=1, W=hashes。
type profile struct {
	Buckets     int `koanf:"buckets"`
	Hashes      int `koanf:"hashes"`
	ReadQuorum  int `koanf:"read_quorum"`
	WriteQuorum int `koanf:"write_quorum"`
}

// defaultProfile 返回默认锁参数。
func defaultProfile() *profile {
	return &profile{
		Buckets:     1024,
		Hashes:      8,
		ReadQuorum:  1,
		WriteQuorum: 8,
	}
}

// loadProfile 从配置文件加载锁参数，path 为空时返回默认配置。
// 根据文件扩展名自动检测格式（.yaml/.yml 或 .json）。
func loadProfile(path string) (*profile, error) {
	prof := defaultProfile()
	if path == "" {
		return prof, nil
	}

	parser, err := parserFor(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := k.Unmarshal("", prof); err != nil {
		return nil, fmt.Errorf("配置文件字段映射失败: %w", err)
	}

	// write_quorum 未显式给出时跟随 hashes，保持默认语义 W=K。
	if !k.Exists("write_quorum") && k.Exists("hashes") {
		prof.WriteQuorum = prof.Hashes
	}
	return prof, nil
}

// parserFor 根据文件扩展名选择解析器。
func parserFor(path string) (koanf.Parser, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, newUsageError("不支持的配置文件格式: %s（仅支持 .yaml/.yml/.json）", ext)
	}
}
