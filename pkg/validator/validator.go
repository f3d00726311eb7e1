package validator

import (
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	zhTranslations "github.com/go-playground/validator/v10/translations/zh"
)

// gin binding校验器的翻译配置
// 根据配置语言把binding错误翻译成中文或英文

var (
	Trans ut.Translator
	once  sync.Once
)

// LazyInitGinValidator 初始化gin的校验翻译器 幂等
func LazyInitGinValidator(language string) {
	once.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}

		enLoc := en.New()
		zhLoc := zh.New()
		uni := ut.New(enLoc, zhLoc, enLoc)

		switch strings.ToLower(language) {
		case "zh", "zh-cn":
			Trans, _ = uni.GetTranslator("zh")
			_ = zhTranslations.RegisterDefaultTranslations(v, Trans)
		default:
			Trans, _ = uni.GetTranslator("en")
			_ = enTranslations.RegisterDefaultTranslations(v, Trans)
		}
	})
}

// Translate 把校验错误翻译成可读文案
func Translate(err error) string {
	if Trans == nil {
		return err.Error()
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	var sb strings.Builder
	for i, e := range errs {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(e.Translate(Trans))
	}
	return sb.String()
}
