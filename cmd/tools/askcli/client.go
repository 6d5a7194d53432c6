package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/zhouzirui/sanatani-gyan/backend/internal/model/chat"
	"github.com/zhouzirui/sanatani-gyan/backend/internal/model/prompt"
)

// apiClient 封装对后端 HTTP 接口的调用
type apiClient struct {
	client *resty.Client
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	return &apiClient{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
	}
}

type authResult struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason"`
}

func (c *apiClient) auth(ctx context.Context, action, username string) (authResult, error) {
	var result authResult
	res, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"username": username}).
		Post("/api/auth/" + action)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal(res.Body(), &result); err != nil {
		return result, fmt.Errorf("unexpected response (%d): %s", res.StatusCode(), res.String())
	}
	return result, nil
}

func (c *apiClient) logout(ctx context.Context) error {
	res, err := c.client.R().SetContext(ctx).Post("/api/auth/logout")
	return checkResponse(res, err)
}

// ask 发送问题；服务端对空白问题返回 204，此时 reply 为空
func (c *apiClient) ask(ctx context.Context, text string) (*chat.Message, error) {
	var reply chat.Message
	res, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"text": text}).
		SetResult(&reply).
		Post("/api/messages")
	if err := checkResponse(res, err); err != nil {
		return nil, err
	}
	if res.StatusCode() == http.StatusNoContent {
		return nil, nil
	}
	return &reply, nil
}

func (c *apiClient) askTopic(ctx context.Context, topic string) (*chat.Message, error) {
	var reply chat.Message
	res, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"topic": topic}).
		SetResult(&reply).
		Post("/api/messages/topic")
	if err := checkResponse(res, err); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (c *apiClient) list(ctx context.Context, savedOnly bool) ([]chat.Message, error) {
	var messages []chat.Message
	req := c.client.R().SetContext(ctx).SetResult(&messages)
	if savedOnly {
		req.SetQueryParam("saved", "true")
	}
	res, err := req.Get("/api/messages")
	if err := checkResponse(res, err); err != nil {
		return nil, err
	}
	return messages, nil
}

func (c *apiClient) clear(ctx context.Context) error {
	res, err := c.client.R().SetContext(ctx).Delete("/api/messages")
	return checkResponse(res, err)
}

func (c *apiClient) topics(ctx context.Context) ([]prompt.Topic, error) {
	var topics []prompt.Topic
	res, err := c.client.R().SetContext(ctx).SetResult(&topics).Get("/api/topics")
	if err := checkResponse(res, err); err != nil {
		return nil, err
	}
	return topics, nil
}

func (c *apiClient) setLanguage(ctx context.Context, lang string) error {
	res, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"language": lang}).
		Put("/api/language")
	return checkResponse(res, err)
}

func checkResponse(res *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if res.IsError() {
		var body struct {
			Error  string `json:"error"`
			Reason string `json:"reason"`
		}
		if json.Unmarshal(res.Body(), &body) == nil {
			if body.Reason != "" {
				return fmt.Errorf("%s (%d)", body.Reason, res.StatusCode())
			}
			if body.Error != "" {
				return fmt.Errorf("%s (%d)", body.Error, res.StatusCode())
			}
		}
		return fmt.Errorf("request failed with status %d", res.StatusCode())
	}
	return nil
}
