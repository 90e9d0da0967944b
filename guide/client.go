// Package guide is a client for the TV 2 broadcast guide API: the channel
// list and the daily program schedules of each channel.
//
// A Client is safe for concurrent use. Every call performs exactly one HTTP
// round trip; nothing is retried or cached.
package guide

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the root of the provider's EPG API.
	DefaultBaseURL = "https://tvtid-api.api.tv2.dk/api/tvtid/v1"

	// DateLayout is the broadcast date format used in schedule URLs.
	DateLayout = "2006-01-02"
)

// Logger receives one line per request when set with WithLogger.
type Logger interface {
	Printf(format string, v ...any)
}

// Client issues requests against the guide API.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     Logger
}

// Option configures a Client.
type Option func(c *Client)

// WithHTTPClient replaces the transport handle. Use it to set a timeout,
// a proxy or a test transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURL points the client at another API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithUserAgent sets the User-Agent header sent with each request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithLogger enables request logging.
func WithLogger(l Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a Client with a default *http.Client (no timeout, no proxy or
// TLS customisation) unless options say otherwise.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// channelsResponse is the envelope of the channel list endpoint.
type channelsResponse struct {
	Channels *[]Channel `json:"channels"`
}

// GetChannels returns the provider's channel list in the order received.
func (c *Client) GetChannels(ctx context.Context) ([]Channel, error) {
	const op = "get channels"
	body, err := c.get(ctx, op, c.baseURL+"/epg/channels")
	if err != nil {
		return nil, err
	}
	var resp channelsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, decodeErr(op, err)
	}
	if resp.Channels == nil {
		return nil, decodeErr(op, missingField("channels"))
	}
	return *resp.Channels, nil
}

// GetSchedule returns the programs of ch on the calendar date of date, as
// seen in date's own location. It returns nil, nil when the provider has no
// programs for that channel and date.
func (c *Client) GetSchedule(ctx context.Context, ch ChannelRef, date time.Time) (*Schedule, error) {
	schedules, err := c.GetSchedules(ctx, []ChannelRef{ch}, date)
	if err != nil {
		return nil, err
	}
	return schedules[ch.ChannelID()], nil
}

// GetSchedules fetches the schedules of several channels for one date in a
// single request. The date is the calendar date of date in its own
// location, so midnight in Copenhagen asks for that Copenhagen day.
// The result is keyed by channel id and only holds channels the provider
// returned programs for. An empty chs returns an empty map without
// contacting the server; a nil ref is an error.
func (c *Client) GetSchedules(ctx context.Context, chs []ChannelRef, date time.Time) (map[string]*Schedule, error) {
	const op = "get schedules"
	out := make(map[string]*Schedule)
	if len(chs) == 0 {
		return out, nil
	}
	for i, ch := range chs {
		if ch == nil {
			return nil, &Error{Kind: KindTransport, Op: op, Err: fmt.Errorf("nil channel ref at index %d", i)}
		}
	}

	day := broadcastDate(date)
	body, err := c.get(ctx, op, c.dayviewURL(day, chs))
	if err != nil {
		return nil, err
	}

	var resp *[]scheduleWire
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, decodeErr(op, err)
	}
	if resp == nil {
		return nil, decodeErr(op, errNullBody)
	}
	for _, w := range *resp {
		if len(*w.Programs) == 0 {
			continue
		}
		out[*w.ID] = &Schedule{
			channelID: *w.ID,
			date:      day,
			programs:  *w.Programs,
		}
	}
	return out, nil
}

func (c *Client) dayviewURL(day time.Time, chs []ChannelRef) string {
	q := url.Values{}
	seen := make(map[string]bool, len(chs))
	for _, ch := range chs {
		id := ch.ChannelID()
		if seen[id] {
			continue
		}
		seen[id] = true
		q.Add("ch", id)
	}
	return fmt.Sprintf("%s/epg/dayviews/%s?%s", c.baseURL, day.Format(DateLayout), q.Encode())
}

// get performs one GET and returns the whole body of a 2xx response.
func (c *Client) get(ctx context.Context, op, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Op: op, URL: rawURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logf("[guide] GET %s: %v", rawURL, err)
		return nil, &Error{Kind: KindTransport, Op: op, URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logf("[guide] GET %s: %s", rawURL, resp.Status)
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &Error{Kind: KindTransport, Op: op, URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindIO, Op: op, URL: rawURL, Err: err}
	}
	c.logf("[guide] GET %s: %d (%d bytes, %s)", rawURL, resp.StatusCode, len(body), time.Since(start).Round(time.Millisecond))
	return body, nil
}

func (c *Client) logf(format string, v ...any) {
	if c.logger != nil {
		c.logger.Printf(format, v...)
	}
}
