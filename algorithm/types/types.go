package types

import "strings"

// OptionType 定义期权类型。
type OptionType string

const (
	OptionTypeCall OptionType = "CALL"
	OptionTypePut  OptionType = "PUT"
)

// Valid 判断期权类型是否为已知取值。
func (t OptionType) Valid() bool {
	return t == OptionTypeCall || t == OptionTypePut
}

// IsPut 是否为看跌期权。
func (t OptionType) IsPut() bool {
	return t == OptionTypePut
}

// ExerciseStyle 定义行权方式。
type ExerciseStyle string

const (
	// ExerciseEuropean 仅在到期日行权。
	ExerciseEuropean ExerciseStyle = "EUROPEAN"
	// ExerciseAmerican 到期前任意时点均可行权。
	ExerciseAmerican ExerciseStyle = "AMERICAN"
)

// Valid 判断行权方式是否为已知取值。
func (s ExerciseStyle) Valid() bool {
	return s == ExerciseEuropean || s == ExerciseAmerican
}

// IsAmerican 是否允许提前行权。
func (s ExerciseStyle) IsAmerican() bool {
	return s == ExerciseAmerican
}

// ParseOptionType 解析大小写不敏感的期权类型字符串，无法识别时返回空值。
func ParseOptionType(s string) OptionType {
	t := OptionType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return ""
	}
	return t
}

// ParseExerciseStyle 解析大小写不敏感的行权方式字符串，空字符串默认为欧式。
func ParseExerciseStyle(s string) ExerciseStyle {
	s = strings.TrimSpace(s)
	if s == "" {
		return ExerciseEuropean
	}
	style := ExerciseStyle(strings.ToUpper(s))
	if !style.Valid() {
		return ""
	}
	return style
}
