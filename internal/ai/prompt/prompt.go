// Package prompt builds the vendor-matching prompt shared by every AI provider
// and turns a model's free-text reply back into a recommendation result.
package prompt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
)

// MaxRecommendations caps the vendor ids kept from a model reply.
const MaxRecommendations = 3

// SystemMessage is sent as the system role by chat-style providers.
const SystemMessage = "You are a field service dispatch AI. You respond only with valid JSON."

var errNoJSON = errors.New("no JSON object found in response")

// Build renders the user prompt for a recommendation request.
func Build(req models.RecommendationRequest) string {
	var b strings.Builder
	b.WriteString("Analyze the following field service job and recommend the best vendors from the list.\n\n")
	b.WriteString("Job Details:\n")
	fmt.Fprintf(&b, "- Title: %s\n", req.Title)
	fmt.Fprintf(&b, "- Description: %s\n", req.Description)
	fmt.Fprintf(&b, "- Service Type: %s\n", req.ServiceType)
	fmt.Fprintf(&b, "- Location: %s\n\n", req.ServiceAddress)

	b.WriteString("Available Vendors:\n")
	for _, c := range req.Candidates {
		b.WriteString(vendorLine(c))
		b.WriteByte('\n')
	}

	b.WriteString(`
Respond ONLY with valid JSON in this exact format:
{
  "jobSummary": "2-3 sentence summary of the job and what needs to be done",
  "recommendedVendorIds": ["vendor-guid-1", "vendor-guid-2"],
  "reasoning": "Brief explanation of why these vendors were chosen based on skills, location, and availability"
}

Select 1-3 best-fit vendors based on service type match, service area, rating, and availability.
If no vendors match the service type, return an empty array for recommendedVendorIds.
`)
	return b.String()
}

func vendorLine(c models.VendorCandidate) string {
	area := c.ServiceArea
	if area == "" {
		area = "Any"
	}
	skills := strings.Join(c.Specializations, ", ")
	if skills == "" {
		skills = "General"
	}
	rating := "N/A"
	if c.Rating != nil {
		rating = fmt.Sprintf("%.1f", *c.Rating)
	}
	return fmt.Sprintf("- ID: %s, Name: %s, Area: %s, Skills: %s, Rating: %s, Available slots: %d",
		c.VendorID, c.Name, area, skills, rating, c.AvailableSlots)
}

// Reply is the parsed model answer.
type Reply struct {
	JobSummary           string
	Reasoning            string
	RecommendedVendorIDs []uuid.UUID
}

type rawReply struct {
	JobSummary           string   `json:"jobSummary"`
	RecommendedVendorIDs []string `json:"recommendedVendorIds"`
	Reasoning            string   `json:"reasoning"`
}

// Parse extracts the JSON object between the first '{' and the last '}' of
// text. Vendor ids that are malformed or not among candidates are dropped.
func Parse(text string, candidates []models.VendorCandidate) (Reply, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return Reply{}, errNoJSON
	}

	var raw rawReply
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return Reply{}, fmt.Errorf("decoding reply: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(raw.RecommendedVendorIDs))
	for _, s := range raw.RecommendedVendorIDs {
		if id, err := uuid.Parse(strings.TrimSpace(s)); err == nil {
			ids = append(ids, id)
		}
	}

	return Reply{
		JobSummary:           strings.TrimSpace(raw.JobSummary),
		Reasoning:            strings.TrimSpace(raw.Reasoning),
		RecommendedVendorIDs: FilterIDs(ids, candidates),
	}, nil
}

// FilterIDs keeps ids present in candidates, in order, without duplicates,
// up to MaxRecommendations. The result is never nil.
func FilterIDs(ids []uuid.UUID, candidates []models.VendorCandidate) []uuid.UUID {
	allowed := make(map[uuid.UUID]bool, len(candidates))
	for _, c := range candidates {
		allowed[c.VendorID] = true
	}

	out := make([]uuid.UUID, 0, MaxRecommendations)
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if len(out) == MaxRecommendations {
			break
		}
		if !allowed[id] || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// CompleteFunc sends a prompt to a model and returns its raw text reply.
type CompleteFunc func(ctx context.Context, prompt string) (string, error)

// Run builds the prompt, calls complete and converts the outcome into a
// result. Failures are reported in the result, never returned.
func Run(ctx context.Context, req models.RecommendationRequest, provider, model string, complete CompleteFunc) models.RecommendationResult {
	start := time.Now()
	text, err := complete(ctx, Build(req))
	latency := int(time.Since(start).Milliseconds())

	res := models.RecommendationResult{
		Provider:     provider,
		ModelVersion: model,
		LatencyMs:    latency,
	}
	if err != nil {
		res.ErrorMessage = fmt.Sprintf("%s request failed: %v", provider, err)
		return res
	}

	reply, err := Parse(text, req.Candidates)
	if err != nil {
		res.ErrorMessage = "Failed to parse AI response: " + err.Error()
		return res
	}

	res.Success = true
	res.RecommendedVendorIDs = reply.RecommendedVendorIDs
	res.Reasoning = reply.Reasoning
	res.JobSummary = reply.JobSummary
	return res
}
