package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const defaultMaxTokens = 100

var errNoChoices = errors.New("响应中没有 choices")

// Config 描述 OpenAI 兼容接口的连接参数。
type Config struct {
	APIKey  string
	BaseURL string // 为空时使用官方地址；可指向任何 OpenAI 兼容服务
	Model   string

	HTTPClient *http.Client
}

// OpenAI 通过 chat completions 接口描述截图。
type OpenAI struct {
	client    *openai.Client
	model     string
	maxTokens int
}

var _ Describer = (*OpenAI)(nil)

func NewOpenAI(cfg Config) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("API key 不能为空")
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if u := strings.TrimSpace(cfg.BaseURL); u != "" {
		oc.BaseURL = strings.TrimRight(u, "/")
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	return &OpenAI{
		client:    openai.NewClientWithConfig(oc),
		model:     model,
		maxTokens: defaultMaxTokens,
	}, nil
}

// Model 返回实际使用的模型名。
func (o *OpenAI) Model() string { return o.model }

// Describe 发送“固定指令 + 低清晰度图片”，返回模型的原始文本回复。
func (o *OpenAI) Describe(ctx context.Context, jpeg []byte) (string, error) {
	if len(jpeg) == 0 {
		return "", &Error{Model: o.model, Stage: "request", Err: errors.New("图片为空")}
	}

	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)

	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{
					Type: openai.ChatMessagePartTypeText,
					Text: FilenamePrompt,
				},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    dataURL,
						Detail: openai.ImageURLDetailLow,
					},
				},
			},
		}},
		MaxTokens: o.maxTokens,
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", &Error{Model: o.model, Stage: "request", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Model: o.model, Stage: "response", Err: errNoChoices}
	}
	return resp.Choices[0].Message.Content, nil
}

// HTTPStatus 从推理错误中提取 HTTP 状态码；不是 HTTP 层错误时返回 0。
func HTTPStatus(err error) int {
	var ae *openai.APIError
	if errors.As(err, &ae) {
		return ae.HTTPStatusCode
	}
	var re *openai.RequestError
	if errors.As(err, &re) {
		return re.HTTPStatusCode
	}
	return 0
}
