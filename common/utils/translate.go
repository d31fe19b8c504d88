package utils

import (
	"reflect"
	"strings"
	"sync/atomic"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/pkg/errors"
)

// translator 最近一次 RegisterValidations 绑定的翻译器
var translator atomic.Value

// customMessages 自定义规则的错误提示, {0} 为字段名
var customMessages = map[string]string{
	"address": "{0} must be a 0x-prefixed 40 hex character address",
	"uintstr": "{0} must be a non-negative integer string",
}

func registerTranslations(v *validator.Validate) error {
	locale := en.New()
	trans, _ := ut.New(locale, locale).GetTranslator("en")

	// 错误提示使用 json 字段名
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	if err := entranslations.RegisterDefaultTranslations(v, trans); err != nil {
		return errors.Wrap(err, "failed on register default translations")
	}
	for tag, msg := range customMessages {
		tag, msg := tag, msg
		err := v.RegisterTranslation(tag, trans,
			func(t ut.Translator) error {
				return t.Add(tag, msg, true)
			},
			func(t ut.Translator, fe validator.FieldError) string {
				s, err := t.T(tag, fe.Field())
				if err != nil {
					return fe.Error()
				}
				return s
			})
		if err != nil {
			return errors.Wrapf(err, "failed on register translation for %s", tag)
		}
	}
	translator.Store(trans)
	return nil
}

// TranslateError 把参数校验错误翻译成可读提示, 其他错误原样返回
func TranslateError(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err.Error()
	}
	trans, ok := translator.Load().(ut.Translator)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		msgs = append(msgs, fe.Translate(trans))
	}
	return strings.Join(msgs, "; ")
}
