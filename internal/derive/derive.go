// internal/derive/derive.go
//
// Derivation Engine.
//
// Context
// -------
// Converts a validated block payload into the canonical scalar values its
// block type may write.  One function per domain:
//
//   - admissions  – acceptance rate, average SAT/ACT, GPA and percentile
//     bounds.
//   - financials  – tuition tiers, room and board, cost of attendance.
//   - geography   – coordinates, climate zone, airport, region.
//   - outcomes    – graduation, retention, employment, starting salary.
//
// Missing optional inputs never fail a derivation; the dependent output is
// simply absent from the returned Values.  Return on investment is not
// derived here; an external sync job owns it.
//
// Notes
// -----
//   - Monetary outputs round to whole currency units.
//   - Acceptance rate rounds to four decimal places so 1500/10000 is
//     exactly 0.15 rather than a float artefact.
package derive

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/yanizio/uniprofile/internal/metrics"
	"github.com/yanizio/uniprofile/internal/payload"
	r "github.com/yanizio/uniprofile/internal/registry"
)

// Engine runs derivations.  The zero value is not usable; call NewEngine.
type Engine struct {
	geocoder Geocoder
	climate  ClimateClassifier
	airports AirportLocator
	log      *zap.Logger
}

// Option customises an Engine.
type Option func(*Engine)

func WithGeocoder(g Geocoder) Option         { return func(e *Engine) { e.geocoder = g } }
func WithClimate(c ClimateClassifier) Option { return func(e *Engine) { e.climate = c } }
func WithAirports(a AirportLocator) Option   { return func(e *Engine) { e.airports = a } }
func WithLogger(l *zap.Logger) Option        { return func(e *Engine) { e.log = l } }

// NewEngine returns an Engine wired to the deterministic lookups unless
// overridden.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		geocoder: HashGeocoder{},
		climate:  DefaultClimate,
		airports: DefaultAirports,
		log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Derive dispatches on the payload variant.  Soft payloads derive nothing.
func (e *Engine) Derive(ctx context.Context, p payload.Payload) (r.Values, error) {
	switch v := p.(type) {
	case *payload.Admissions:
		return Admissions(v), nil
	case *payload.Financials:
		return Financials(v), nil
	case *payload.Geography:
		return e.Geography(ctx, v), nil
	case *payload.Outcomes:
		return Outcomes(v), nil
	case *payload.Soft:
		return r.Values{}, nil
	case nil:
		return nil, fmt.Errorf("derive: nil payload")
	default:
		return nil, fmt.Errorf("derive: unsupported payload %T", p)
	}
}

/*──────────────────────────── admissions ──────────────────────────────────*/

// Admissions derives acceptance rate and test-score averages.
func Admissions(p *payload.Admissions) r.Values {
	out := r.Values{}

	if p.Applications != nil && p.Accepted != nil && *p.Applications > 0 {
		out[r.FieldAcceptanceRate] = r.Float(round(*p.Accepted / *p.Applications, 4))
	}
	if all(p.Math25, p.Math75, p.Verbal25, p.Verbal75) {
		sat := mean(*p.Math25, *p.Math75) + mean(*p.Verbal25, *p.Verbal75)
		out[r.FieldAvgSatScore] = r.Int(int64(math.Round(sat)))
	}
	if all(p.Composite25, p.Composite75) {
		out[r.FieldAvgActScore] = r.Int(int64(math.Round(mean(*p.Composite25, *p.Composite75))))
	}

	passFloat(out, r.FieldGPA25, p.GPA25)
	passFloat(out, r.FieldGPA75, p.GPA75)
	passInt(out, r.FieldSatPercentile25, p.SatPercentile25)
	passInt(out, r.FieldSatPercentile75, p.SatPercentile75)
	return out
}

/*──────────────────────────── financials ──────────────────────────────────*/

// Financials derives tuition tiers and total cost of attendance.
func Financials(p *payload.Financials) r.Values {
	out := r.Values{}

	var outState *float64
	if all(p.InStateTuition, p.Fees) {
		out[r.FieldTuitionInState] = money(*p.InStateTuition + *p.Fees)
	}
	if all(p.InStateTuition, p.OutStatePremium, p.Fees) {
		v := *p.InStateTuition + *p.OutStatePremium + *p.Fees
		outState = &v
		out[r.FieldTuitionOutState] = money(v)
	}
	switch {
	case p.InternationalTuition != nil:
		out[r.FieldTuitionInternational] = money(*p.InternationalTuition)
	case outState != nil:
		out[r.FieldTuitionInternational] = money(*outState)
	}

	var roomBoard *float64
	if all(p.OnCampusHousing, p.MealPlan) {
		v := *p.OnCampusHousing + *p.MealPlan
		roomBoard = &v
		out[r.FieldRoomAndBoard] = money(v)
	}
	if outState != nil && roomBoard != nil && all(p.Books, p.MiscPersonal) {
		out[r.FieldCostOfLiving] = money(*outState + *roomBoard + *p.Books + *p.MiscPersonal)
	}
	return out
}

/*──────────────────────────── geography ───────────────────────────────────*/

// Geography resolves location fields.  Lookup failures are logged and
// counted; the affected field is left unset.
func (e *Engine) Geography(ctx context.Context, p *payload.Geography) r.Values {
	out := r.Values{}

	if state := strings.TrimSpace(p.State); state != "" {
		out[r.FieldRegion] = r.String(p.State)
	}

	addr := joinNonEmpty(p.Address, p.City, p.State, p.Country)
	if addr != "" {
		coords, err := e.geocoder.Resolve(ctx, addr)
		if err != nil {
			e.lookupFailed("geocode", err, zap.String("address", addr))
		} else {
			out[r.FieldLatitude] = r.Float(coords.Lat)
			out[r.FieldLongitude] = r.Float(coords.Lng)

			zone, err := e.climate.ZoneFor(coords.Lat)
			if err != nil {
				e.lookupFailed("climate", err, zap.Float64("lat", coords.Lat))
			} else {
				out[r.FieldClimateZone] = r.String(zone)
			}
		}
	}

	if code := strings.ToUpper(strings.TrimSpace(p.AirportOverride)); code != "" {
		out[r.FieldNearestAirport] = r.String(code)
	} else if p.City != "" {
		code, err := e.airports.AirportFor(ctx, p.City)
		if err != nil {
			e.lookupFailed("airport", err, zap.String("city", p.City))
		} else {
			out[r.FieldNearestAirport] = r.String(code)
		}
	}
	return out
}

func (e *Engine) lookupFailed(lookup string, err error, fields ...zap.Field) {
	metrics.GeoLookupFailures.WithLabelValues(lookup).Inc()
	e.log.Warn("geo lookup failed, field left unset",
		append(fields, zap.String("lookup", lookup), zap.Error(err))...)
}

/*──────────────────────────── outcomes ────────────────────────────────────*/

// Outcomes passes the normalised outcome metrics through.
func Outcomes(p *payload.Outcomes) r.Values {
	out := r.Values{}
	passFloat(out, r.FieldGraduationRate, p.GraduationRate)
	passFloat(out, r.FieldRetentionRate, p.RetentionRate)
	passFloat(out, r.FieldEmploymentRate, p.EmploymentRate)
	if p.AvgStartingSalary != nil {
		out[r.FieldAvgStartingSalary] = money(*p.AvgStartingSalary)
	}
	return out
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

func all(vs ...*float64) bool {
	for _, v := range vs {
		if v == nil {
			return false
		}
	}
	return true
}

func mean(a, b float64) float64 { return (a + b) / 2 }

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func money(v float64) r.Value { return r.Int(int64(math.Round(v))) }

func passFloat(out r.Values, f r.Field, v *float64) {
	if v != nil {
		out[f] = r.Float(*v)
	}
}

func passInt(out r.Values, f r.Field, v *float64) {
	if v != nil {
		out[f] = r.Int(int64(math.Round(*v)))
	}
}

func joinNonEmpty(parts ...string) string {
	keep := parts[:0:0]
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			keep = append(keep, s)
		}
	}
	return strings.Join(keep, ", ")
}
