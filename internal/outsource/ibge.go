package outsource

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/go-faster/errors"

	"github.com/JonMunkholm/aggrada/internal/flatten"
	"github.com/JonMunkholm/aggrada/internal/spatial"
)

// DefaultIBGEBaseURL is the IBGE data service root.
const DefaultIBGEBaseURL = "https://servicodados.ibge.gov.br"

// ibgeLocalities maps admin levels to IBGE localities API resources.
var ibgeLocalities = map[string]string{
	"country":      "paises",
	"region":       "regioes",
	"state":        "estados",
	"municipality": "municipios",
	"city":         "municipios",
	"district":     "distritos",
	"subdistrict":  "subdistritos",
}

// IBGE looks up codes in the IBGE localities API.
type IBGE struct {
	client     *Client
	baseURL    string
	adminLevel string
	locality   string
}

// NewIBGE returns a provider for one admin level, such as "city" or "state".
func NewIBGE(client *Client, baseURL, adminLevel string) (*IBGE, error) {
	locality, ok := ibgeLocalities[strings.ToLower(adminLevel)]
	if !ok {
		return nil, errors.Errorf("ibge: unsupported admin level %q", adminLevel)
	}
	if baseURL == "" {
		baseURL = DefaultIBGEBaseURL
	}
	return &IBGE{
		client:     client,
		baseURL:    strings.TrimRight(baseURL, "/"),
		adminLevel: strings.ToLower(adminLevel),
		locality:   locality,
	}, nil
}

func (p *IBGE) Name() string { return "ibge" }

// Lookup fetches the flattened ("nivelado") view of code.
func (p *IBGE) Lookup(ctx context.Context, code string) (spatial.Entity, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return spatial.Entity{}, ErrNotFound
	}

	apiURL := p.baseURL + "/api/v1/localidades/" + p.locality + "/" + url.PathEscape(code) + "?view=nivelado"

	var raw json.RawMessage
	if err := p.client.getJSON(ctx, apiURL, nil, &raw); err != nil {
		return spatial.Entity{}, errors.Wrapf(err, "ibge %s %s", p.locality, code)
	}

	record, err := firstRecord(raw)
	if err != nil {
		return spatial.Entity{}, errors.Wrapf(err, "ibge %s %s", p.locality, code)
	}

	meta := flatten.Flatten(record)
	meta["apiUrl"] = apiURL

	return spatial.Entity{
		GeoCode:    code,
		Source:     p.Name(),
		AdminLevel: p.adminLevel,
		Metadata:   meta,
	}, nil
}

// firstRecord accepts either an object or an array of objects. An empty
// array or object means the code is unknown.
func firstRecord(raw json.RawMessage) (map[string]any, error) {
	var list []map[string]any
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 || len(list[0]) == 0 {
			return nil, ErrNotFound
		}
		return list[0], nil
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, errors.Wrap(err, "decode locality")
	}
	if len(obj) == 0 {
		return nil, ErrNotFound
	}
	return obj, nil
}
