package axm

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

// DefaultPageLimit is the largest page the API serves.
const DefaultPageLimit = 1000

// Pages walks a cursor-paginated collection, yielding each record in server
// order. The first request omits the cursor; iteration ends when a page has
// no nextCursor. An error ends the sequence and is yielded as the final
// element. Breaking out of the loop stops fetching.
func (c *Client) Pages(ctx context.Context, path string, params url.Values) iter.Seq2[Resource, error] {
	return func(yield func(Resource, error) bool) {
		q := url.Values{}
		for k, v := range params {
			q[k] = append([]string(nil), v...)
		}

		if q.Get("limit") == "" {
			q.Set("limit", strconv.Itoa(c.pageLimit))
		}

		seen := map[string]bool{}
		page := 0
		total := 0

		for {
			page++

			var resp collectionResponse
			if err := c.getJSON(ctx, path+"?"+q.Encode(), &resp); err != nil {
				yield(Resource{}, err)
				return
			}

			total += len(resp.Data)

			c.logger.Debug("fetched page",
				slog.String("path", path),
				slog.Int("page", page),
				slog.Int("records", len(resp.Data)),
			)

			for _, r := range resp.Data {
				if !yield(r, nil) {
					return
				}
			}

			next := resp.Meta.Paging.NextCursor
			if next == "" {
				c.logger.Info("collection complete",
					slog.String("path", path),
					slog.Int("pages", page),
					slog.Int("records", total),
				)

				return
			}

			if seen[next] {
				yield(Resource{}, fmt.Errorf("%w: %s after %d page(s)", ErrCursorLoop, path, page))
				return
			}

			seen[next] = true
			q.Set("cursor", next)
		}
	}
}

// OrgDevices lists every device in the organization.
func (c *Client) OrgDevices(ctx context.Context) iter.Seq2[Resource, error] {
	return c.Pages(ctx, "/orgDevices", nil)
}

// MDMServers lists the device management services.
func (c *Client) MDMServers(ctx context.Context) iter.Seq2[Resource, error] {
	return c.Pages(ctx, "/mdmServers", nil)
}

// MDMServerDevices lists the device linkages ({type, id}) of one server.
func (c *Client) MDMServerDevices(ctx context.Context, serverID string) iter.Seq2[Resource, error] {
	return c.Pages(ctx, "/mdmServers/"+url.PathEscape(serverID)+"/relationships/devices", nil)
}

// Collect drains a sequence into a slice, stopping at the first error.
func Collect(seq iter.Seq2[Resource, error]) ([]Resource, error) {
	var out []Resource

	for r, err := range seq {
		if err != nil {
			return out, err
		}

		out = append(out, r)
	}

	return out, nil
}

// getJSON performs an authenticated GET and decodes the response.
func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	resp, err := c.Execute(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	return decodeJSON(resp, v)
}
