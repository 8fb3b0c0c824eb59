package notification

import (
	"context"
	"fmt"
)

type PushConfig struct {
	AppKey       string
	MasterSecret string
}

// JPushClient 便于替换/注入的推送接口（适配真实 SDK）
type JPushClient interface {
	Push(ctx context.Context, title, content string, audience map[string]interface{}, extras map[string]interface{}) error
}

type JPush struct {
	cfg PushConfig
	cli JPushClient
}

func NewJPush(cfg PushConfig, cli JPushClient) *JPush { return &JPush{cfg: cfg, cli: cli} }

// Push implements Pusher, addressing the user by alias.
func (j *JPush) Push(ctx context.Context, userID, title, body string, extras map[string]interface{}) error {
	if j.cli == nil {
		return fmt.Errorf("JPushClient not configured")
	}
	aud := map[string]interface{}{"alias": []string{userID}}
	return j.cli.Push(ctx, title, body, aud, extras)
}

func (j *JPush) PushToAll(ctx context.Context, title, content string, extras map[string]interface{}) error {
	if j.cli == nil {
		return fmt.Errorf("JPushClient not configured")
	}
	aud := map[string]interface{}{"all": true}
	return j.cli.Push(ctx, title, content, aud, extras)
}
