// Package loki pushes archived audit events to Grafana Loki.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"esign-workflow/internal/audit/publisher"
)

const defaultJob = "esign-audit"

// PushRequest is the Loki push API request body (v1).
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is a single stream with labels and log entries.
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"` // [timestamp_ns, line]
}

var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:]`)

// Entry is one line to push.
type Entry struct {
	Time   time.Time
	Line   string
	Labels map[string]string
}

// Client pushes to one Loki instance.
type Client struct {
	baseURL string
	job     string
	http    *http.Client
}

// NewClient returns a client for baseURL (e.g. http://localhost:3100).
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("loki: base URL is empty")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), job: defaultJob, http: httpClient}, nil
}

// EntryFromAudit turns a Kafka audit message into an entry. Session ids stay in the line to keep
// label cardinality low. Undecodable payloads are pushed raw at the current time.
func EntryFromAudit(raw []byte) Entry {
	e := Entry{Time: time.Now().UTC(), Line: string(raw), Labels: map[string]string{}}
	var msg publisher.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		e.Labels["decode_error"] = "true"
		return e
	}
	if !msg.OccurredAt.IsZero() {
		e.Time = msg.OccurredAt
	}
	e.Labels["event_type"] = msg.EventType
	e.Labels["actor_role"] = msg.ActorRole
	if msg.ToStage != "" {
		e.Labels["stage"] = msg.ToStage
	}
	return e
}

// Push sends entries grouped into streams by label set.
func (c *Client) Push(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	payload, err := json.Marshal(c.request(entries))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/loki/api/v1/push", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}

func (c *Client) request(entries []Entry) PushRequest {
	byKey := map[string]*Stream{}
	var keys []string
	for _, e := range entries {
		labels := c.labels(e.Labels)
		key := labelKey(labels)
		s, ok := byKey[key]
		if !ok {
			s = &Stream{Stream: labels}
			byKey[key] = s
			keys = append(keys, key)
		}
		s.Values = append(s.Values, []string{strconv.FormatInt(e.Time.UnixNano(), 10), e.Line})
	}
	out := PushRequest{Streams: make([]Stream, 0, len(keys))}
	for _, k := range keys {
		out.Streams = append(out.Streams, *byKey[k])
	}
	return out
}

func (c *Client) labels(in map[string]string) map[string]string {
	out := make(map[string]string, len(in)+1)
	out["job"] = c.job
	for k, v := range in {
		if s := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_"); s != "" {
			out[k] = s
		}
	}
	return out
}

func labelKey(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
		b.WriteByte(',')
	}
	return b.String()
}
