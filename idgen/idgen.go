// Package idgen 提供基于雪花算法的分布式唯一 ID 生成器，用于请求 ID.
package idgen

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/snowflake"
)

// Generator 定义 ID 生成器接口.
type Generator interface {
	Generate() int64
}

// SnowflakeGenerator 使用雪花算法实现 Generator.
// 每毫秒可生成 4096 个 ID，节点号范围 0-1023.
type SnowflakeGenerator struct {
	node *snowflake.Node
}

// NewSnowflakeGenerator 以给定节点号创建生成器.
func NewSnowflakeGenerator(nodeID int64) (*SnowflakeGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node %d: %w", nodeID, err)
	}
	slog.Info("snowflake generator initialized", "node_id", nodeID)
	return &SnowflakeGenerator{node: node}, nil
}

// Generate 生成一个新的 ID.
func (g *SnowflakeGenerator) Generate() int64 {
	return g.node.Generate().Int64()
}

// GenerateString 生成 base36 编码的短 ID.
func (g *SnowflakeGenerator) GenerateString() string {
	return g.node.Generate().Base36()
}

var (
	defaultGen  *SnowflakeGenerator
	defaultOnce sync.Once
	defaultMu   sync.RWMutex
)

// Init 使用指定节点号替换默认生成器.
func Init(nodeID int64) error {
	gen, err := NewSnowflakeGenerator(nodeID)
	if err != nil {
		return err
	}
	defaultMu.Lock()
	defaultGen = gen
	defaultMu.Unlock()
	return nil
}

// Default 返回默认生成器，未初始化时使用节点 0.
func Default() *SnowflakeGenerator {
	defaultOnce.Do(func() {
		defaultMu.Lock()
		defer defaultMu.Unlock()
		if defaultGen == nil {
			node, _ := snowflake.NewNode(0)
			defaultGen = &SnowflakeGenerator{node: node}
		}
	})
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultGen
}

// GenIDString 使用默认生成器生成字符串 ID.
func GenIDString() string {
	return Default().GenerateString()
}
