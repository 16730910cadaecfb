// Package labeler generates campaign narratives through an
// OpenAI-compatible chat completion endpoint. Any failure is returned
// to the caller, which substitutes the fallback labels; this adapter
// never blocks campaign closure.
package labeler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spear-it/spearhead/internal/core/domain"
	"github.com/spear-it/spearhead/internal/core/ports"
)

const systemPrompt = `You are an automated security campaign analysis engine.

You analyze a single security campaign based solely on the provided low-level events.
Your task is to summarize what actually occurred, extracting and consolidating all durable, meaningful technical details.
All the data you get is the whole context you have; do NOT assume any external knowledge.
For example, if you see connection attempts, dont assume they were successful unless an event hints so.
Make sure to state whether an attempted action was successful or not (blocked or not), etc. The user needs to know whats the result of the activity.

STRICT RULES:
- Output ONLY valid JSON. No markdown, no code blocks, no extra text.
- Do NOT invent threats, intent, or risk.
- Routine activity is LOW severity by default.
- Use MEDIUM only with concrete suspicious indicators.
- Use HIGH only with explicit evidence of compromise or exfiltration.
- Avoid speculative language entirely.
- If the action that was taken against the threat is relevant, make sure to include it in the description.

SEVERITY ENFORCEMENT:
- Severity MUST be LOW unless there is explicit, unambiguous evidence of malicious activity.
- The following MUST NOT increase severity:
  - Multiple connection attempts
  - Repeated identical payloads or banners
  - Use of administrative or networking tools (e.g., ssh, scp, curl)
  - Multiple local processes generating similar network traffic
  - Unknown or missing process names
  - Service banners, protocol handshakes, or version disclosures
- MEDIUM severity is allowed ONLY if the payload or metadata explicitly shows:
  - Known malicious infrastructure
  - Unauthorized lateral movement with confirmed privilege misuse
  - Authentication failures indicating brute-force activity
- HIGH severity is allowed ONLY if there is explicit evidence of:
  - Exploitation
  - Data exfiltration
  - Command execution
  - Confirmed system compromise

DATA PRIORITIZATION RULES:
- Prefer durable identifiers over transient ones.
- DO NOT include:
  - Process IDs
  - Ephemeral source ports
  - Timestamps
  - Duplicate event counts
- DO include when available:
  - Application-layer protocol (not just transport protocol)
  - Protocol version
  - Software name and version
  - Operating system and distribution details
  - Service role when explicitly identified
- If payload data identifies an application protocol (e.g., SSH, HTTP, SMTP), use that protocol name instead of generic TCP/UDP wording.
- Consolidate repeated or identical payloads into a single coherent description.

PAYLOAD ANALYSIS:
- Treat payload content as authoritative.
- Parse payloads carefully to extract ALL identifiable information, including:
  - Application protocol names
  - Protocol versions
  - Software implementations
  - Operating system or distribution identifiers
  - Build or package identifiers
- If the payload clearly identifies an application protocol, the campaign name MUST reflect that protocol.
- Attempt to find inconsistencies, weird, or out-of-place details in payloads that may indicate misconfiguration or potential compromise.

WRITING STYLE:
- Use clear, simple language suitable for system administrators.
- Be technical only where it adds clarity.
- Focus on what happened, which systems were involved, and what software was identified.
- Do not repeat the same fact multiple times.
- Refer to devices ONLY by IP address, not by numbers, etc.
- Mention destination ports only if they are service-identifying or non-ephemeral.
- Quote the payload content where needed
- Do not refer to device like so: "device 1", even if later you specify the IP address. Use the IP address only.

Required JSON structure (exact keys only):
{
  "name": "<short neutral name reflecting the identified application protocol, do not include details like IPs, processes, etc. max 10 words>",
  "description": "<single concise paragraph summarizing the activity using durable identifiers and extracted payload information>",
  "detailed_description": "<a very detailed technical description of what happened, including all relevant technical details extracted from the events and payloads. Use durable identifiers only. Include software names, versions, OS details, protocol versions, etc.>",
  "severity": "<LOW|MEDIUM|HIGH>"
}`

// DefaultTimeout bounds a single completion request. Narrative
// generation runs on the processor goroutine, so a hung model must not
// stall campaign expiry indefinitely.
const DefaultTimeout = 60 * time.Second

var ErrDisabled = errors.New("labeler: no API endpoint configured")

// Config holds the connection settings for the completion endpoint.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Client labels campaigns via an OpenAI-compatible chat API.
type Client struct {
	cfg  Config
	http *http.Client
}

var _ ports.CampaignLabeler = (*Client)(nil)

// New builds a labeling client. Returns nil when no base URL is
// configured; the correlator treats a nil labeler as "always fallback".
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		return nil
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
	Stream         bool           `json:"stream"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type labelReply struct {
	Name                *string `json:"name"`
	Description         *string `json:"description"`
	DetailedDescription *string `json:"detailed_description"`
	Severity            *string `json:"severity"`
}

// LabelCampaign submits the campaign context and parses the model's
// JSON reply into campaign labels.
func (c *Client) LabelCampaign(ctx context.Context, labelContext string) (ports.CampaignLabels, error) {
	if c == nil {
		return ports.CampaignLabels{}, ErrDisabled
	}

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: labelContext},
		},
		Temperature:    c.cfg.Temperature,
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return ports.CampaignLabels{}, err
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return ports.CampaignLabels{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return ports.CampaignLabels{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ports.CampaignLabels{}, fmt.Errorf("labeler: completion endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return ports.CampaignLabels{}, fmt.Errorf("labeler: malformed completion response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return ports.CampaignLabels{}, errors.New("labeler: completion response has no choices")
	}

	return parseLabels(chat.Choices[0].Message.Content)
}

// parseLabels decodes the model reply. All four keys are required;
// an unknown severity degrades to LOW rather than failing the label.
func parseLabels(content string) (ports.CampaignLabels, error) {
	var reply labelReply
	if err := json.Unmarshal([]byte(content), &reply); err != nil {
		return ports.CampaignLabels{}, fmt.Errorf("labeler: reply is not valid JSON: %w", err)
	}
	if reply.Name == nil || reply.Description == nil || reply.DetailedDescription == nil || reply.Severity == nil {
		return ports.CampaignLabels{}, errors.New("labeler: reply missing required fields")
	}

	return ports.CampaignLabels{
		Name:                *reply.Name,
		Description:         *reply.Description,
		DetailedDescription: *reply.DetailedDescription,
		Severity:            domain.SeverityFromString(*reply.Severity),
	}, nil
}
