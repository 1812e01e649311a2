package telegram

import "strings"

// markdownReplacer 转义旧版 Markdown 模式下的特殊字符
var markdownReplacer = strings.NewReplacer(
	"_", "\\_",
	"*", "\\*",
	"`", "\\`",
	"[", "\\[",
)

// EscapeMarkdown 转义插入到消息模板中的变量
func EscapeMarkdown(input string) string {
	return markdownReplacer.Replace(input)
}
