package carrier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/mbeoliero/kit/log"
)

// TwilioConfig configures the Twilio-compatible REST client
type TwilioConfig struct {
	BaseURL           string
	AccountSid        string
	AuthToken         string
	StatusCallbackURL string
}

// TwilioClient submits messages through the Twilio Messages REST API
type TwilioClient struct {
	cfg        TwilioConfig
	httpClient *client.Client
}

// messageResource is the subset of the Messages resource we read
type messageResource struct {
	Sid    string `json:"sid"`
	Status string `json:"status"`
}

// NewTwilioClient creates a new TwilioClient
func NewTwilioClient(cfg TwilioConfig) (*TwilioClient, error) {
	httpClient, err := client.NewClient(
		client.WithDialTimeout(5*time.Second),
		client.WithClientReadTimeout(30*time.Second),
		client.WithWriteTimeout(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &TwilioClient{cfg: cfg, httpClient: httpClient}, nil
}

// endpoint returns the Messages resource URL for the account
func (c *TwilioClient) endpoint() string {
	return fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.cfg.BaseURL, url.PathEscape(c.cfg.AccountSid))
}

// Submit posts one message. The context deadline bounds the whole call.
func (c *TwilioClient) Submit(ctx context.Context, s *Submission) (*Receipt, error) {
	form := url.Values{}
	form.Set("To", s.To)
	form.Set("From", s.From)
	form.Set("Body", s.Body)
	if c.cfg.StatusCallbackURL != "" {
		form.Set("StatusCallback", c.cfg.StatusCallbackURL)
	}

	req := &protocol.Request{}
	resp := &protocol.Response{}

	req.SetMethod(consts.MethodPost)
	req.SetRequestURI(c.endpoint())
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.cfg.AccountSid, c.cfg.AuthToken)
	req.SetBody([]byte(form.Encode()))

	var err error
	deadline, hasDeadline := ctx.Deadline()
	if hasDeadline {
		err = c.httpClient.DoDeadline(ctx, req, resp, deadline)
	} else {
		err = c.httpClient.Do(ctx, req, resp)
	}
	if err != nil {
		if ctx.Err() != nil || (hasDeadline && !time.Now().Before(deadline)) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		carrierErr := &Error{HTTPStatus: status}
		if jsonErr := json.Unmarshal(resp.Body(), carrierErr); jsonErr != nil || carrierErr.Message == "" {
			carrierErr.Message = string(resp.Body())
		}
		carrierErr.HTTPStatus = status
		log.CtxWarn(ctx, "carrier rejected submission: to=%s, status=%d, code=%d", s.To, status, carrierErr.Code)
		return nil, carrierErr
	}

	var res messageResource
	if err := json.Unmarshal(resp.Body(), &res); err != nil {
		return nil, fmt.Errorf("failed to decode carrier response: %w", err)
	}
	if res.Sid == "" {
		return nil, fmt.Errorf("carrier response has no sid")
	}

	return &Receipt{ExternalId: res.Sid, Status: res.Status}, nil
}
