package cnam

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "net/url"
    "time"

    "github.com/hamzaKhattat/fs-xml-router/pkg/logger"
)

// Record holds the caller identity fields a carrier lookup returns.
type Record struct {
    NationalNumberFormatted string `json:"national_number_formatted"`
    CallerID                string `json:"-"`
    Location                string `json:"-"`
}

type lookupResponse struct {
    NationalNumberFormatted string `json:"national_number_formatted"`
    Cnam                    struct {
        CallerID string `json:"caller_id"`
    } `json:"cnam"`
    Carrier struct {
        City  string `json:"city"`
        State string `json:"state"`
    } `json:"carrier"`
}

// Client queries the carrier's phone-number lookup API for CNAM data.
// Lookups are best-effort: every failure path returns (nil, nil) so a
// slow or broken upstream never delays call routing beyond the client
// timeout.
type Client struct {
    spaceHost string
    projectID string
    apiToken  string
    http      *http.Client
}

const lookupTimeout = time.Second

func New(spaceHost, projectID, apiToken string) *Client {
    return &Client{
        spaceHost: spaceHost,
        projectID: projectID,
        apiToken:  apiToken,
        http: &http.Client{
            Timeout: lookupTimeout,
        },
    }
}

// Enabled reports whether the client has credentials configured.
func (c *Client) Enabled() bool {
    return c.spaceHost != "" && c.projectID != "" && c.apiToken != ""
}

// normalizeNumber gives a bare 10-digit national number the +1 prefix
// the lookup API expects.
func normalizeNumber(number string) string {
    if len(number) != 10 {
        return number
    }
    for _, c := range number {
        if c < '0' || c > '9' {
            return number
        }
    }
    return "+1" + number
}

// Lookup fetches the CNAM record for a calling number. Returns nil when
// the client is unconfigured, the upstream fails, or the response cannot
// be decoded.
func (c *Client) Lookup(ctx context.Context, number string) *Record {
    if !c.Enabled() || number == "" {
        return nil
    }

    number = normalizeNumber(number)

    endpoint := fmt.Sprintf("https://%s/api/relay/rest/lookup/phone_number/%s?include=cnam,carrier",
        c.spaceHost, url.PathEscape(number))

    ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
    defer cancel()

    req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
    if err != nil {
        return nil
    }
    req.SetBasicAuth(c.projectID, c.apiToken)

    resp, err := c.http.Do(req)
    if err != nil {
        logger.WithContext(ctx).WithError(err).WithField("number", number).Warn("CNAM lookup failed")
        return nil
    }
    defer resp.Body.Close()

    if resp.StatusCode != http.StatusOK {
        logger.WithContext(ctx).WithFields(map[string]interface{}{
            "number": number,
            "status": resp.StatusCode,
        }).Warn("CNAM lookup returned non-200")
        return nil
    }

    var body lookupResponse
    if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
        logger.WithContext(ctx).WithError(err).Warn("CNAM response decode failed")
        return nil
    }

    rec := &Record{
        NationalNumberFormatted: body.NationalNumberFormatted,
        CallerID:                body.Cnam.CallerID,
    }
    if body.Carrier.City != "" && body.Carrier.State != "" {
        rec.Location = body.Carrier.City + ", " + body.Carrier.State
    } else if body.Carrier.State != "" {
        rec.Location = body.Carrier.State
    }

    return rec
}
