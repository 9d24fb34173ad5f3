package connector

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/hejijunhao/statusreport/internal/errs"
	"github.com/hejijunhao/statusreport/internal/model"
)

// Vendor hints accepted by the resolver.
const (
	VendorAuto       = "auto"
	VendorStatuspage = "statuspage"
	VendorGeneric    = "generic"
)

// statuspageHosts are host suffixes that are always Statuspage-hosted.
var statuspageHosts = []string{".statuspage.io"}

// Resolver picks the ordered adapter plan for a status page URL.
type Resolver struct {
	opts   Options
	vendor string
	logger *slog.Logger
}

// NewResolver creates a Resolver. vendor is one of VendorAuto,
// VendorStatuspage or VendorGeneric.
func NewResolver(opts Options, vendor string, logger *slog.Logger) *Resolver {
	if vendor == "" {
		vendor = VendorAuto
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{opts: opts, vendor: vendor, logger: logger}
}

// Plan returns the adapters to try for pageURL, in order.
func (r *Resolver) Plan(ctx context.Context, pageURL string) ([]Adapter, error) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errs.Configf("invalid status page url %q", pageURL)
	}

	vendor := r.vendor
	if vendor == VendorAuto {
		vendor = r.detect(ctx, u)
		r.logger.Debug("detected vendor", "url", pageURL, "vendor", vendor)
	}

	var kinds []model.AdapterKind
	switch vendor {
	case VendorStatuspage:
		kinds = []model.AdapterKind{model.AdapterStructuredAPI, model.AdapterVendorHTML}
	case VendorGeneric:
		kinds = []model.AdapterKind{model.AdapterFeed, model.AdapterGeneric}
	default:
		return nil, errs.Configf("unknown vendor %q", vendor)
	}

	plan := make([]Adapter, 0, len(kinds))
	for _, k := range kinds {
		ctor, err := Get(k)
		if err != nil {
			return nil, errs.Configf("%v", err)
		}
		plan = append(plan, ctor(r.opts))
	}
	return plan, nil
}

// detect recognizes Statuspage by host, then by probing its public API.
func (r *Resolver) detect(ctx context.Context, u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	for _, suffix := range statuspageHosts {
		if strings.HasSuffix(host, suffix) {
			return VendorStatuspage
		}
	}

	probe := r.opts
	probe.MaxRetries = 0
	c := probe.Client(strings.TrimRight(u.String(), "/"))
	var status struct {
		Page *struct {
			ID string `json:"id"`
		} `json:"page"`
	}
	if err := c.GetJSON(ctx, "/api/v2/status.json", nil, &status); err == nil && status.Page != nil && status.Page.ID != "" {
		return VendorStatuspage
	}
	return VendorGeneric
}
