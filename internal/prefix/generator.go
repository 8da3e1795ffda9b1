package prefix

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"

	"tempalias/backend/internal/domain"
)

// Strategy 前缀生成策略
type Strategy int

const (
	// StrategyNameCombo 名与姓组合，如 anna.parker、leo_hayes42
	StrategyNameCombo Strategy = iota
	// StrategyWordDigits 单词加数字，如 cedar417
	StrategyWordDigits
	// StrategySyllables 可发音的音节串，如 kalomir
	StrategySyllables
	// StrategyProfessional 首字母加姓氏，如 j.walker、mbrooks
	StrategyProfessional
)

// AllStrategies 默认参与随机选择的策略
var AllStrategies = []Strategy{
	StrategyNameCombo,
	StrategyWordDigits,
	StrategySyllables,
	StrategyProfessional,
}

func (s Strategy) String() string {
	switch s {
	case StrategyNameCombo:
		return "name_combo"
	case StrategyWordDigits:
		return "word_digits"
	case StrategySyllables:
		return "syllables"
	case StrategyProfessional:
		return "professional"
	default:
		return "unknown"
	}
}

// maxRegenerate 命中屏蔽词后重新生成的次数上限
const maxRegenerate = 8

// Generator 生成看起来像真实用户的邮箱前缀。
//
// Generator 只负责生成候选值，唯一性冲突由调用方重试处理。并发安全。
type Generator struct {
	mu         sync.Mutex
	rng        *rand.Rand
	strategies []Strategy
}

// Option 生成器选项
type Option func(*Generator)

// WithSeed 使用固定种子，生成序列可复现
func WithSeed(seed uint64) Option {
	return func(g *Generator) {
		g.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithStrategies 限制参与随机选择的策略，空列表时保持默认
func WithStrategies(strategies ...Strategy) Option {
	return func(g *Generator) {
		if len(strategies) > 0 {
			g.strategies = append([]Strategy(nil), strategies...)
		}
	}
}

// New 创建前缀生成器
func New(opts ...Option) *Generator {
	g := &Generator{
		rng:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		strategies: AllStrategies,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate 均匀随机选择一种策略生成前缀
func (g *Generator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generate(g.pick())
}

// GenerateWith 使用指定策略生成前缀
func (g *Generator) GenerateWith(strategy Strategy) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generate(strategy)
}

func (g *Generator) pick() Strategy {
	return g.strategies[g.rng.IntN(len(g.strategies))]
}

func (g *Generator) generate(strategy Strategy) string {
	for i := 0; i < maxRegenerate; i++ {
		candidate := g.build(strategy)
		if acceptable(candidate) {
			return candidate
		}
	}
	// 词表组合不含屏蔽词，作为兜底
	return g.choice(firstNames) + "." + g.choice(lastNames)
}

func (g *Generator) build(strategy Strategy) string {
	switch strategy {
	case StrategyWordDigits:
		return g.wordDigits()
	case StrategySyllables:
		return g.syllables()
	case StrategyProfessional:
		return g.professional()
	default:
		return g.nameCombo()
	}
}

func (g *Generator) nameCombo() string {
	out := g.choice(firstNames) + g.choice(separators) + g.choice(lastNames)
	if g.rng.IntN(2) == 0 {
		out += strconv.Itoa(10 + g.rng.IntN(90))
	}
	return out
}

func (g *Generator) wordDigits() string {
	digits := 2 + g.rng.IntN(3)
	n := g.rng.IntN(pow10(digits))
	return g.choice(words) + leftPad(strconv.Itoa(n), digits)
}

func (g *Generator) syllables() string {
	var b strings.Builder
	count := 2 + g.rng.IntN(3)
	for i := 0; i < count; i++ {
		b.WriteString(g.choice(consonants))
		b.WriteString(g.choice(vowels))
	}
	b.WriteString(g.choice(codas))
	if g.rng.IntN(3) == 0 {
		b.WriteString(strconv.Itoa(g.rng.IntN(100)))
	}
	return b.String()
}

func (g *Generator) professional() string {
	first := g.choice(firstNames)
	last := g.choice(lastNames)
	switch g.rng.IntN(4) {
	case 0:
		return first[:1] + "." + last
	case 1:
		return first[:1] + last
	case 2:
		return last + "." + first[:1]
	default:
		return first + "." + last[:1]
	}
}

func (g *Generator) choice(list []string) string {
	return list[g.rng.IntN(len(list))]
}

// acceptable 检查候选前缀的格式、长度以及屏蔽词
func acceptable(candidate string) bool {
	if domain.ValidatePrefix(candidate) != nil {
		return false
	}
	return !IsBlocked(candidate)
}

// IsBlocked 判断前缀是否包含一次性邮箱特征词
func IsBlocked(prefix string) bool {
	lower := strings.ToLower(prefix)
	for _, marker := range blockedMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func pow10(n int) int {
	v := 1
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}

func leftPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
