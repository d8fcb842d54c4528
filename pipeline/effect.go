package pipeline

import (
	"fmt"
	"strings"
)

// Effect 背景处理模式
type Effect int32

const (
	EffectRemove  Effect = iota // 移除背景
	EffectReplace               // 替换为背景图
	EffectBlur                  // 模糊背景

	numEffects = 3
)

// Next 按 Remove -> Replace -> Blur -> Remove 循环切换
func (e Effect) Next() Effect {
	return (e + 1) % numEffects
}

func (e Effect) String() string {
	switch e {
	case EffectRemove:
		return "remove"
	case EffectReplace:
		return "replace"
	case EffectBlur:
		return "blur"
	default:
		return fmt.Sprintf("Effect(%d)", int32(e))
	}
}

// Valid 是否为已知模式
func (e Effect) Valid() bool {
	return e >= 0 && e < numEffects
}

// ParseEffect 解析模式名称
func ParseEffect(s string) (Effect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "remove", "delete":
		return EffectRemove, nil
	case "replace", "background":
		return EffectReplace, nil
	case "blur":
		return EffectBlur, nil
	}
	return 0, fmt.Errorf("未知的处理模式 %q (可选 remove, replace, blur)", s)
}
