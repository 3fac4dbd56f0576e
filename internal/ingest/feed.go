package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/chainsmoker-project/chainsmoker/internal/store"
)

// Case-management feed (Kibana Cases API shape). Cases tagged for the
// timeline carry customFields keyed by the workbook columns.

const (
	feedFindPath    = "/api/cases/_find"
	feedDefaultPage = 100
)

// FeedOptions configures the case feed client.
type FeedOptions struct {
	BaseURL string
	APIKey  string
	Tag     string // only cases carrying this tag are pulled; empty pulls all
	PerPage int
	Timeout time.Duration
	Logger  *log.Logger
}

// FeedClient pulls attack-chain events from a case-management feed.
type FeedClient struct {
	opts   FeedOptions
	client *http.Client
}

type feedCustomField struct {
	Key   string `json:"key"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

type feedCase struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Status       string            `json:"status"`
	Owner        string            `json:"owner"`
	CreatedAt    string            `json:"created_at"`
	CustomFields []feedCustomField `json:"customFields"`
}

type feedFindResponse struct {
	Page    int        `json:"page"`
	PerPage int        `json:"per_page"`
	Total   int        `json:"total"`
	Cases   []feedCase `json:"cases"`
}

// NewFeedClient constructs a feed client.
func NewFeedClient(opts FeedOptions) *FeedClient {
	if opts.PerPage <= 0 {
		opts.PerPage = feedDefaultPage
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[feed] ", log.LstdFlags)
	}
	return &FeedClient{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
	}
}

// Pull fetches every page of matching cases and converts them to event
// records. Cases without a mitre_tactic custom field are dropped.
func (fc *FeedClient) Pull(ctx context.Context) ([]store.EventFields, error) {
	var records []store.EventFields

	for page := 1; ; page++ {
		resp, err := fc.findCases(ctx, page)
		if err != nil {
			return nil, err
		}
		for _, c := range resp.Cases {
			rec, ok := caseToRecord(c)
			if !ok {
				fc.opts.Logger.Printf("Skipping case %s: no tactic field", c.ID)
				continue
			}
			records = append(records, rec)
		}
		if page*resp.PerPage >= resp.Total || len(resp.Cases) == 0 {
			break
		}
	}

	fc.opts.Logger.Printf("Pulled %d case records from %s", len(records), fc.opts.BaseURL)
	return records, nil
}

func (fc *FeedClient) findCases(ctx context.Context, page int) (*feedFindResponse, error) {
	u, err := url.Parse(fc.opts.BaseURL + feedFindPath)
	if err != nil {
		return nil, fmt.Errorf("bad feed URL: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("perPage", strconv.Itoa(fc.opts.PerPage))
	if fc.opts.Tag != "" {
		q.Set("tags", fc.opts.Tag)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if fc.opts.APIKey != "" {
		req.Header.Set("Authorization", "ApiKey "+fc.opts.APIKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := fc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("feed returned %d: %s", resp.StatusCode, string(body))
	}

	var out feedFindResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode feed response: %w", err)
	}
	if out.PerPage <= 0 {
		out.PerPage = fc.opts.PerPage
	}
	return &out, nil
}

// caseToRecord maps a case's custom fields onto an event record.
func caseToRecord(c feedCase) (store.EventFields, bool) {
	fields := make(map[string]string, len(c.CustomFields))
	for _, cf := range c.CustomFields {
		fields[cf.Key] = cf.Value
	}

	tactic, ok := fields["mitre_tactic"]
	if !ok || tactic == "" {
		return store.EventFields{}, false
	}

	chain := fields["attack_chain"]
	if chain == "" {
		chain = c.Title
	}

	return store.EventFields{
		Timestamp:  fields["date_time_mpnet"],
		Tactic:     tactic,
		SourceHost: fields["src_ip"],
		DestHost:   fields["dst_ip"],
		Details:    fields["details"],
		Notes:      fields["notes"],
		Operator:   fields["operator"],
		ChainID:    chain,
	}, true
}
