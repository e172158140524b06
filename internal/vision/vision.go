package vision

import (
	"context"
	"fmt"
)

// DefaultModel 是未指定 --model / 配置时使用的模型。
const DefaultModel = "gpt-4o-mini"

// FilenamePrompt 是随图片一起发送的固定指令。
const FilenamePrompt = `Look at this screenshot and generate a descriptive filename.

Be specific about what you see:
- If it's an app, name the app and what's shown (e.g., "slack-dm-with-john-about-project")
- If it's a webpage, include the site and content (e.g., "github-pull-request-review-comments")
- If it's code, mention the language and what it does (e.g., "python-async-api-handler")
- If it's a document, describe the content (e.g., "quarterly-sales-report-chart")

Rules:
- Use lowercase letters and hyphens only
- Be specific and descriptive (5-8 words is ideal)
- No special characters or punctuation

Respond with ONLY the filename, nothing else.`

// Describer 把“图片 -> 描述文本”限制在 vision 包内部；重命名流水线只依赖该接口。
//
// 约束：
// - 输入是已规范化的 JPEG 字节
// - 失败通过 error 返回（不 panic）；空描述由调用方判定
// - 不做重试：失败的文件保留原名，下次运行自然重试
type Describer interface {
	Describe(ctx context.Context, jpeg []byte) (string, error)
}

// DescriberFunc 让普通函数满足 Describer（测试/适配用）。
type DescriberFunc func(ctx context.Context, jpeg []byte) (string, error)

func (f DescriberFunc) Describe(ctx context.Context, jpeg []byte) (string, error) {
	return f(ctx, jpeg)
}

// Error 是推理阶段的可追溯错误。
// Stage："request"（请求未成功返回）或 "response"（返回结构不可用）。
type Error struct {
	Model string
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("model=%s stage=%s: %v", e.Model, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
