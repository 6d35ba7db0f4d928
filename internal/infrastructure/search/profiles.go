// Package search keeps a denormalised copy of every profile in
// Elasticsearch for full-text lookup.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/sirupsen/logrus"
)

// ProfileLink is the searchable part of a link.
type ProfileLink struct {
	URL  string `json:"url"`
	Text string `json:"text,omitempty"`
	Name string `json:"name,omitempty"`
}

// ProfileCosmetic is the decoration set of a profile.
type ProfileCosmetic struct {
	Flair string `json:"flair,omitempty"`
	Frame string `json:"frame,omitempty"`
	Theme string `json:"theme,omitempty"`
}

// ProfileStatus is the status line shown above a profile.
type ProfileStatus struct {
	Text       string `json:"text,omitempty"`
	StatusText string `json:"statusText,omitempty"`
}

// ProfileDoc is one indexed profile, keyed by user id.
type ProfileDoc struct {
	ID               string           `json:"id"`
	UserName         string           `json:"userName"`
	Name             string           `json:"name,omitempty"`
	Bio              string           `json:"bio,omitempty"`
	Location         string           `json:"location,omitempty"`
	Image            string           `json:"image,omitempty"`
	Role             string           `json:"role"`
	Views            int              `json:"views"`
	Links            []ProfileLink    `json:"links"`
	Labels           []string         `json:"labels"`
	SocialIcons      []string         `json:"socialIcons"`
	Cosmetic         *ProfileCosmetic `json:"cosmetic,omitempty"`
	Statusbar        *ProfileStatus   `json:"statusbar,omitempty"`
	BackgroundColors []string         `json:"backgroundColors"`
	NeonColors       []string         `json:"neonColors"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

const mapping = `{
  "mappings": {
    "properties": {
      "id":          {"type": "keyword"},
      "userName":    {"type": "text", "fields": {"raw": {"type": "keyword"}}},
      "name":        {"type": "text"},
      "bio":         {"type": "text"},
      "location":    {"type": "text"},
      "image":       {"type": "keyword", "index": false},
      "role":        {"type": "keyword"},
      "views":       {"type": "integer"},
      "links": {
        "properties": {
          "url":  {"type": "keyword"},
          "text": {"type": "text"},
          "name": {"type": "text"}
        }
      },
      "labels":      {"type": "text"},
      "socialIcons": {"type": "keyword"},
      "cosmetic": {
        "properties": {
          "flair": {"type": "text"},
          "frame": {"type": "keyword"},
          "theme": {"type": "keyword"}
        }
      },
      "statusbar": {
        "properties": {
          "text":       {"type": "text"},
          "statusText": {"type": "text"}
        }
      },
      "backgroundColors": {"type": "keyword"},
      "neonColors":       {"type": "keyword"},
      "updatedAt":   {"type": "date"}
    }
  }
}`

// Profiles reads and writes the profile index.
type Profiles struct {
	es      *elasticsearch.Client
	index   string
	timeout time.Duration
	logger  *logrus.Logger
}

func NewProfiles(es *elasticsearch.Client, index string, logger *logrus.Logger) *Profiles {
	return &Profiles{es: es, index: index, timeout: 3 * time.Second, logger: logger}
}

// do sends req under the client timeout. The returned func closes the
// body and releases the timeout; it must be called once the body is read.
func (p *Profiles) do(ctx context.Context, req esapi.Request) (*esapi.Response, func(), error) {
	c, cancel := context.WithTimeout(ctx, p.timeout)
	res, err := req.Do(c, p.es)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	return res, func() {
		_ = res.Body.Close()
		cancel()
	}, nil
}

func responseError(op string, res *esapi.Response) error {
	return fmt.Errorf("search: %s: %s", op, res.Status())
}

// EnsureIndex creates the index with its mapping when it does not exist.
func (p *Profiles) EnsureIndex(ctx context.Context) error {
	res, done, err := p.do(ctx, esapi.IndicesExistsRequest{Index: []string{p.index}})
	if err != nil {
		return err
	}
	done()
	if res.StatusCode == http.StatusOK {
		return nil
	}
	res, done, err = p.do(ctx, esapi.IndicesCreateRequest{Index: p.index, Body: strings.NewReader(mapping)})
	if err != nil {
		return err
	}
	defer done()
	if res.IsError() {
		return responseError("create index", res)
	}
	p.logger.WithField("index", p.index).Info("search index created")
	return nil
}

func (p *Profiles) Index(ctx context.Context, doc ProfileDoc) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	res, done, err := p.do(ctx, esapi.IndexRequest{Index: p.index, DocumentID: doc.ID, Body: bytes.NewReader(b), Refresh: "false"})
	if err != nil {
		return err
	}
	defer done()
	if res.IsError() {
		return responseError("index", res)
	}
	return nil
}

// Delete removes a profile. A missing document is not an error.
func (p *Profiles) Delete(ctx context.Context, id string) error {
	res, done, err := p.do(ctx, esapi.DeleteRequest{Index: p.index, DocumentID: id})
	if err != nil {
		return err
	}
	defer done()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("delete", res)
	}
	return nil
}

// Search runs a multi_match over the profile text fields.
func (p *Profiles) Search(ctx context.Context, q string, size int) ([]ProfileDoc, error) {
	if size <= 0 || size > 50 {
		size = 10
	}
	body := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  q,
				"fields": []string{"userName^3", "name^2", "bio", "location", "labels", "links.text", "links.name", "cosmetic.flair", "statusbar.text", "statusbar.statusText"},
			},
		},
		"size": size,
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	res, done, err := p.do(ctx, esapi.SearchRequest{Index: []string{p.index}, Body: bytes.NewReader(b)})
	if err != nil {
		return nil, err
	}
	defer done()
	if res.IsError() {
		return nil, responseError("search", res)
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string     `json:"_id"`
				Source ProfileDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	out := make([]ProfileDoc, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}
