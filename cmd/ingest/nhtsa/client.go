// Package nhtsa fetches vehicle recall records from the NHTSA public APIs:
// vPIC for VIN decoding and the recalls-by-vehicle endpoint.
package nhtsa

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/AutoSenseAI/autosense/engine/domain"
	"github.com/AutoSenseAI/autosense/pkg/resilience"
)

const (
	defaultVPICBase   = "https://vpic.nhtsa.dot.gov/api/vehicles"
	defaultRecallBase = "https://api.nhtsa.gov"
	userAgent         = "autosense-ingest/1.0 (vehicle recall data collection)"
)

// Vehicle is the decoded identity of a VIN.
type Vehicle struct {
	Make  string
	Model string
	Year  string
}

// Recall is one NHTSA recall campaign record.
type Recall struct {
	CampaignNumber string `json:"NHTSACampaignNumber"`
	RecallDate     string `json:"RecallDate"`
	Summary        string `json:"Summary"`
}

// Client calls the NHTSA APIs with polite rate limiting.
type Client struct {
	vpicBase   string
	recallBase string
	client     *http.Client
	limiter    *resilience.Limiter
	logger     *slog.Logger
}

// NewClient creates a Client. The public NHTSA endpoints tolerate roughly a
// couple of requests per second, so calls share a token bucket.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		vpicBase:   defaultVPICBase,
		recallBase: defaultRecallBase,
		client: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: resilience.NewLimiter(resilience.LimiterOpts{Rate: 2, Burst: 1}),
		logger:  logger,
	}
}

func (c *Client) get(ctx context.Context, url string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("nhtsa: get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("nhtsa: unexpected status %d from %s", resp.StatusCode, url)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("nhtsa: decode %s: %w", url, err)
	}
	return nil
}

type vpicResponse struct {
	Results []struct {
		Make      string `json:"Make"`
		Model     string `json:"Model"`
		ModelYear string `json:"ModelYear"`
	} `json:"Results"`
}

// DecodeVIN resolves a VIN to make, model, and model year via vPIC.
func (c *Client) DecodeVIN(ctx context.Context, vin string) (Vehicle, error) {
	url := fmt.Sprintf("%s/DecodeVinValues/%s?format=json", c.vpicBase, neturl.PathEscape(vin))

	var body vpicResponse
	if err := c.get(ctx, url, &body); err != nil {
		return Vehicle{}, err
	}
	if len(body.Results) == 0 {
		return Vehicle{}, fmt.Errorf("nhtsa: no decode results for VIN %s", vin)
	}
	r := body.Results[0]
	v := Vehicle{Make: r.Make, Model: r.Model, Year: r.ModelYear}
	if v.Make == "" || v.Model == "" || v.Year == "" {
		return Vehicle{}, fmt.Errorf("nhtsa: incomplete decode for VIN %s: %+v", vin, v)
	}
	return v, nil
}

type recallResponse struct {
	Count   int      `json:"Count"`
	Results []Recall `json:"results"`
}

// RecallsByVehicle fetches recall campaigns for a make, model, and year.
func (c *Client) RecallsByVehicle(ctx context.Context, vehicle Vehicle) ([]Recall, error) {
	// The recalls endpoint expects compacted lowercase make and model.
	q := neturl.Values{}
	q.Set("make", compact(vehicle.Make))
	q.Set("model", compact(vehicle.Model))
	q.Set("modelYear", vehicle.Year)
	url := fmt.Sprintf("%s/recalls/recallsByVehicle?%s", c.recallBase, q.Encode())

	var body recallResponse
	if err := c.get(ctx, url, &body); err != nil {
		return nil, err
	}
	return body.Results, nil
}

// RecallsForVIN decodes a VIN and returns its recalls as diagnostic
// documents tagged with that VIN.
func (c *Client) RecallsForVIN(ctx context.Context, vin string) ([]domain.DiagnosticDocument, error) {
	vehicle, err := c.DecodeVIN(ctx, vin)
	if err != nil {
		return nil, err
	}
	recalls, err := c.RecallsByVehicle(ctx, vehicle)
	if err != nil {
		return nil, err
	}

	docs := recallDocs(recalls, vin)
	c.logger.Info("fetched recalls",
		"vin", vin,
		"make", vehicle.Make,
		"model", vehicle.Model,
		"year", vehicle.Year,
		"recalls", len(docs),
	)
	return docs, nil
}

// RecallsForVehicle returns recall campaigns for a make/model/year as
// diagnostic documents. They carry no VIN and are found by text search only.
func (c *Client) RecallsForVehicle(ctx context.Context, vehicle Vehicle) ([]domain.DiagnosticDocument, error) {
	recalls, err := c.RecallsByVehicle(ctx, vehicle)
	if err != nil {
		return nil, err
	}
	docs := recallDocs(recalls, "")
	c.logger.Info("fetched recalls",
		"make", vehicle.Make,
		"model", vehicle.Model,
		"year", vehicle.Year,
		"recalls", len(docs),
	)
	return docs, nil
}

// recallDocs maps API recalls to documents, dropping entries with no
// campaign number.
func recallDocs(recalls []Recall, vin string) []domain.DiagnosticDocument {
	docs := make([]domain.DiagnosticDocument, 0, len(recalls))
	for _, r := range recalls {
		if r.CampaignNumber == "" {
			continue
		}
		docs = append(docs, domain.DiagnosticDocument{
			Type:     domain.DocTypeRecall,
			RecallID: r.CampaignNumber,
			VIN:      vin,
			Date:     r.RecallDate,
			Summary:  r.Summary,
		})
	}
	return docs
}

func compact(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "")
}
