// Package lookup fetches raw reference payloads for identifiers the user
// pasted into the conversation: arXiv ids, DOIs and ORCID iDs. The payloads
// are handed to the model verbatim; no parsing happens here.
package lookup

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	userAgent   = "metacurator/1.0 (dataset metadata assistant)"
	maxBodySize = 256 << 10
)

// Func fetches the raw payload for one identifier.
type Func func(ctx context.Context, identifier string) (string, error)

// Client bundles the reference services behind one HTTP client.
type Client struct {
	http *http.Client
}

// NewClient returns a client with a sane default timeout.
func NewClient() *Client {
	return &Client{http: &http.Client{Timeout: 15 * time.Second}}
}

func (c *Client) get(ctx context.Context, rawURL, accept string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("lookup %s: unexpected status %s", rawURL, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Arxiv fetches the Atom metadata record for an arXiv identifier.
func (c *Client) Arxiv(ctx context.Context, id string) (string, error) {
	u := "https://export.arxiv.org/api/query?id_list=" + url.QueryEscape(id)
	return c.get(ctx, u, "")
}

// DOI resolves a DOI to its CSL JSON record via content negotiation.
func (c *Client) DOI(ctx context.Context, doi string) (string, error) {
	u := "https://doi.org/" + url.PathEscape(doi)
	return c.get(ctx, u, "application/vnd.citationstyles.csl+json")
}

// ORCID fetches the public record for an ORCID iD.
func (c *Client) ORCID(ctx context.Context, id string) (string, error) {
	u := "https://pub.orcid.org/v3.0/" + url.PathEscape(id) + "/record"
	return c.get(ctx, u, "application/json")
}

// ORCIDSearch runs a name search against the public ORCID registry.
func (c *Client) ORCIDSearch(ctx context.Context, name string) (string, error) {
	u := "https://pub.orcid.org/v3.0/expanded-search/?q=" + url.QueryEscape(name)
	return c.get(ctx, u, "application/json")
}
