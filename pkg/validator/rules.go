package validator

import (
	"strings"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/asakusa/enterprise-rag/pkg/utils/id"
)

// Custom validation tags
const (
	TagNotBlank = "notblank" // 至少包含一个非空白字符
	TagDocPath  = "docpath"  // 本地文档目录路径
	TagULID     = "ulid"     // ULID 格式的会话 ID
)

var customMessages = map[string]map[string]string{
	LangEN: {
		TagNotBlank: "{0} must not be blank",
		TagDocPath:  "{0} must be a local directory path",
		TagULID:     "{0} must be a valid session id",
	},
	LangZH: {
		TagNotBlank: "{0}不能为空白",
		TagDocPath:  "{0}必须是本地目录路径",
		TagULID:     "{0}必须是有效的会话ID",
	},
}

func (v *Validator) registerCustomRules() {
	_ = v.validate.RegisterValidation(TagNotBlank, validateNotBlank)
	_ = v.validate.RegisterValidation(TagDocPath, validateDocPath)
	_ = v.validate.RegisterValidation(TagULID, validateULID)

	for lang, messages := range customMessages {
		trans := v.trans[lang]
		for tag, message := range messages {
			registerTranslation(v.validate, trans, tag, message)
		}
	}
}

func registerTranslation(validate *validator.Validate, trans ut.Translator, tag, message string) {
	_ = validate.RegisterTranslation(tag, trans,
		func(ut ut.Translator) error {
			return ut.Add(tag, message, true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T(tag, fe.Field())
			return t
		},
	)
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// validateDocPath 拒绝空白、控制字符和 URL 形式的路径。
func validateDocPath(fl validator.FieldLevel) bool {
	p := fl.Field().String()
	if strings.TrimSpace(p) == "" {
		return false
	}
	if strings.Contains(p, "://") {
		return false
	}
	for _, r := range p {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

func validateULID(fl validator.FieldLevel) bool {
	return id.IsValidULID(fl.Field().String())
}
