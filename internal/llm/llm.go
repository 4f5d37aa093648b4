package llm

import "context"

// Message represents a conversation message.
type Message struct {
	Role    string // "user", "assistant"
	Content string
}

// Roles used in Message.Role.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// FunctionDecl declares a function the model may invoke. Parameters is a
// JSON schema object.
type FunctionDecl struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// FunctionCall is a model-issued request to run a named function.
// Arguments is the raw JSON text the model produced and may be malformed.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatRequest is a single chat-completion call.
type ChatRequest struct {
	SystemPrompt string
	Messages     []Message
	Functions    []FunctionDecl
	Temperature  float64
	MaxTokens    int
}

// ChatResponse is the provider-neutral completion result.
type ChatResponse struct {
	Content      string
	FunctionCall *FunctionCall
	Usage        Usage
}

// Usage reports token counts when the provider returns them.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Provider completes a chat turn, optionally with tools.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}
