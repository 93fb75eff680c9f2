package outsource

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/JonMunkholm/aggrada/internal/flatten"
	"github.com/JonMunkholm/aggrada/internal/spatial"
)

// DefaultCEPAbertoBaseURL is the CEP Aberto API root.
const DefaultCEPAbertoBaseURL = "https://www.cepaberto.com"

// cepValidFrom is the start date stamped on every postal code entity.
var cepValidFrom = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// CEPAberto resolves Brazilian postal codes (CEP) to coordinates.
type CEPAberto struct {
	client  *Client
	baseURL string
	token   string
}

func NewCEPAberto(client *Client, baseURL, token string) *CEPAberto {
	if baseURL == "" {
		baseURL = DefaultCEPAbertoBaseURL
	}
	return &CEPAberto{client: client, baseURL: strings.TrimRight(baseURL, "/"), token: token}
}

func (p *CEPAberto) Name() string { return "cepaberto" }

func (p *CEPAberto) Lookup(ctx context.Context, code string) (spatial.Entity, error) {
	cep := normalizeCEP(code)
	if cep == "" {
		return spatial.Entity{}, ErrNotFound
	}

	apiURL := p.baseURL + "/api/v3/cep?cep=" + url.QueryEscape(cep)
	header := http.Header{}
	if p.token != "" {
		header.Set("Authorization", "Token token="+p.token)
	}

	var body map[string]any
	if err := p.client.getJSON(ctx, apiURL, header, &body); err != nil {
		return spatial.Entity{}, errors.Wrapf(err, "cepaberto %s", cep)
	}

	// Unknown codes come back as 200 with an empty object.
	if found, _ := body["cep"].(string); found == "" {
		return spatial.Entity{}, errors.Wrapf(ErrNotFound, "cepaberto %s", cep)
	}

	meta := flatten.Flatten(body)
	meta["apiUrl"] = p.baseURL + "/api/v3/cep"

	e := spatial.Entity{
		GeoCode:    code,
		Source:     p.Name(),
		AdminLevel: "postal_code",
		StartDate:  cepValidFrom,
		Metadata:   meta,
	}
	if lat, ok := coordinate(body["latitude"]); ok {
		e.Lat = &lat
	}
	if lon, ok := coordinate(body["longitude"]); ok {
		e.Lon = &lon
	}
	return e, nil
}

// normalizeCEP strips separators: "13563-665" and "13563 665" become
// "13563665".
func normalizeCEP(code string) string {
	return strings.NewReplacer("-", "", " ", "", ".", "").Replace(strings.TrimSpace(code))
}

// coordinate accepts the API's string coordinates as well as numbers.
func coordinate(v any) (float64, bool) {
	switch c := v.(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		return f, err == nil
	case float64:
		return c, true
	}
	return 0, false
}
