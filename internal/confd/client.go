// Package confd is the HTTP client for the directory service, which maps
// channels, users, lines, extensions and tenants.
package confd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/cel-logd/internal/cel"
	"github.com/snarg/cel-logd/internal/generator"
)

// Client implements generator.Directory against a wazo-confd style API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	log     zerolog.Logger
}

func NewClient(baseURL, token string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "confd").Logger(),
	}
}

type lineItem struct {
	ID         int        `json:"id"`
	Name       string     `json:"name"`
	TenantUUID string     `json:"tenant_uuid"`
	Users      []userRef  `json:"users"`
	Extensions []extenRef `json:"extensions"`
}

type userRef struct {
	UUID string `json:"uuid"`
}

type extenRef struct {
	Exten   string `json:"exten"`
	Context string `json:"context"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
}

type userItem struct {
	UUID       string     `json:"uuid"`
	TenantUUID string     `json:"tenant_uuid"`
	UserField  string     `json:"userfield"`
	Lines      []lineItem `json:"lines"`
}

type contextItem struct {
	Name       string `json:"name"`
	TenantUUID string `json:"tenant_uuid"`
}

// FindParticipantByChannel resolves a channel name to the user owning the
// matching line. Unknown lines and lines without users return nil.
func (c *Client) FindParticipantByChannel(ctx context.Context, channelName string) (*generator.DirectoryParticipant, error) {
	lineName := cel.InterfaceName(channelName)

	var lines listResponse[lineItem]
	if err := c.get(ctx, "/1.1/lines", url.Values{"name": {lineName}}, &lines); err != nil {
		if err == errNotFound {
			return nil, nil
		}
		return nil, err
	}
	if len(lines.Items) == 0 {
		return nil, nil
	}
	line := lines.Items[0]
	if len(line.Users) == 0 {
		return nil, nil
	}

	user, err := c.getUser(ctx, line.Users[0].UUID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}

	p := &generator.DirectoryParticipant{
		UUID:       user.UUID,
		LineID:     line.ID,
		TenantUUID: line.TenantUUID,
		Tags:       parseTags(user.UserField),
	}
	if len(line.Extensions) > 0 {
		p.MainExtension = &generator.Extension{
			Exten:   line.Extensions[0].Exten,
			Context: line.Extensions[0].Context,
		}
	}
	return p, nil
}

// FindParticipantByUUID resolves a user uuid directly.
func (c *Client) FindParticipantByUUID(ctx context.Context, userUUID string) (*generator.DirectoryParticipant, error) {
	user, err := c.getUser(ctx, userUUID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}

	p := &generator.DirectoryParticipant{
		UUID:       user.UUID,
		TenantUUID: user.TenantUUID,
		Tags:       parseTags(user.UserField),
	}
	if len(user.Lines) > 0 {
		line := user.Lines[0]
		p.LineID = line.ID
		if len(line.Extensions) > 0 {
			p.MainExtension = &generator.Extension{
				Exten:   line.Extensions[0].Exten,
				Context: line.Extensions[0].Context,
			}
		}
	}
	return p, nil
}

// ListContexts returns the dialplan contexts matching a name.
func (c *Client) ListContexts(ctx context.Context, name string) ([]generator.DirectoryContext, error) {
	var resp listResponse[contextItem]
	if err := c.get(ctx, "/1.1/contexts", url.Values{"name": {name}}, &resp); err != nil {
		if err == errNotFound {
			return nil, nil
		}
		return nil, err
	}
	contexts := make([]generator.DirectoryContext, 0, len(resp.Items))
	for _, item := range resp.Items {
		contexts = append(contexts, generator.DirectoryContext{
			Name:       item.Name,
			TenantUUID: item.TenantUUID,
		})
	}
	return contexts, nil
}

func (c *Client) getUser(ctx context.Context, uuid string) (*userItem, error) {
	var user userItem
	err := c.get(ctx, "/1.1/users/"+url.PathEscape(uuid), nil, &user)
	if err != nil {
		if err == errNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

var errNotFound = fmt.Errorf("not found")

func (c *Client) get(ctx context.Context, path string, query url.Values, v any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", generator.ErrDirectoryUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("X-Auth-Token", c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", generator.ErrDirectoryUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: GET %s: status %d", generator.ErrDirectoryUnavailable, path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", generator.ErrDirectoryUnavailable, path, err)
	}
	c.log.Trace().Str("path", path).Msg("confd lookup")
	return nil
}

// parseTags splits the directory's free-form userfield into tags.
func parseTags(userField string) []string {
	if userField == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(userField, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
