package utils

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// validatorM 自定义的验证器函数映射
	validatorM map[string]validator.Func
	// patternM 正则表达式模式映射
	patternM map[string]string
)

func init() {
	validatorM = map[string]validator.Func{
		"address": regexpValidator,
		"uintstr": regexpValidator,
	}
	patternM = map[string]string{
		// 以太坊地址: 0x 开头, 后接 40 位十六进制字符
		"address": `^0x[a-fA-F0-9]{40}$`,
		// 十进制非负整数字符串, 用于最小单位金额
		"uintstr": `^[0-9]{1,78}$`,
	}
}

// regexpValidator 根据 tag 名称查找正则并匹配
var regexpValidator validator.Func = func(fl validator.FieldLevel) bool {
	key, _ := fl.Field().Interface().(string)
	pattern, ok := patternM[fl.GetTag()]
	if ok {
		match, _ := regexp.MatchString(pattern, key)
		return match
	}
	return false
}

// RegisterValidations 把自定义规则及英文错误翻译注册到 validator 实例 (gin 的 binding 引擎)
func RegisterValidations(v *validator.Validate) error {
	for tag, fn := range validatorM {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}
	return registerTranslations(v)
}

// NormalizeAddress 统一使用小写地址作为存储与比较的键
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
