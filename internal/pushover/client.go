package pushover

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const DefaultAPIURL = "https://api.pushover.net/1/messages.json"

type Client struct {
	Token  string
	User   string
	APIURL string
	HTTP   *http.Client

	limiter *rate.Limiter
}

// NewClient returns a client allowing at most ratePerSec messages per second
// (burst of the same size). A non-positive rate means unlimited.
func NewClient(token, user string, ratePerSec int) *Client {
	lim := rate.NewLimiter(rate.Inf, 0)
	if ratePerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)
	}
	return &Client{
		Token:   token,
		User:    user,
		APIURL:  DefaultAPIURL,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
		limiter: lim,
	}
}

func (c *Client) SendMessage(ctx context.Context, title, message string) error {
	if c.Token == "" || c.User == "" {
		return fmt.Errorf("pushover: token and user are required")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("pushover: rate limit: %w", err)
		}
	}

	params := url.Values{}
	params.Set("token", c.Token)
	params.Set("user", c.User)
	params.Set("title", title)
	params.Set("message", message)
	params.Set("html", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL, strings.NewReader(params.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("pushover api error: status %s, body %s", resp.Status, string(body))
	}

	return nil
}
