// internal/payload/payload.go
//
// Closed set of raw block payloads.
//
// Context
// -------
// Canonical block types carry one of four typed payloads (Admissions,
// Financials, Geography, Outcomes).  Every other block type is a Soft
// payload holding opaque JSON for rendering.  The derivation engine
// switches over this set exhaustively, so adding a domain means adding a
// type here and a case there.
//
// Optional numeric inputs are pointers; nil means "not supplied" and the
// dependent output is omitted rather than defaulted.
package payload

import "encoding/json"

// Payload is implemented only by the types in this file.
type Payload interface {
	BlockType() string
	isPayload()
}

// Admissions is the raw input of an admissions_stats block.
type Admissions struct {
	Type            string   `json:"-"`
	Applications    *float64 `json:"applications"    validate:"omitempty,gte=0"`
	Accepted        *float64 `json:"accepted"        validate:"omitempty,gte=0"`
	Math25          *float64 `json:"math25"          validate:"omitempty,gte=200,lte=800"`
	Math75          *float64 `json:"math75"          validate:"omitempty,gte=200,lte=800"`
	Verbal25        *float64 `json:"verbal25"        validate:"omitempty,gte=200,lte=800"`
	Verbal75        *float64 `json:"verbal75"        validate:"omitempty,gte=200,lte=800"`
	Composite25     *float64 `json:"composite25"     validate:"omitempty,gte=1,lte=36"`
	Composite75     *float64 `json:"composite75"     validate:"omitempty,gte=1,lte=36"`
	GPA25           *float64 `json:"gpa25"           validate:"omitempty,gte=0,lte=5"`
	GPA75           *float64 `json:"gpa75"           validate:"omitempty,gte=0,lte=5"`
	SatPercentile25 *float64 `json:"satPercentile25" validate:"omitempty,gte=400,lte=1600"`
	SatPercentile75 *float64 `json:"satPercentile75" validate:"omitempty,gte=400,lte=1600"`
}

// Financials is the raw input of a cost_breakdown block.  Amounts are in
// whole or fractional currency units; outputs are rounded.
type Financials struct {
	Type                 string   `json:"-"`
	InStateTuition       *float64 `json:"inStateTuition"       validate:"omitempty,gte=0"`
	OutStatePremium      *float64 `json:"outStatePremium"      validate:"omitempty,gte=0"`
	Fees                 *float64 `json:"fees"                 validate:"omitempty,gte=0"`
	InternationalTuition *float64 `json:"internationalTuition" validate:"omitempty,gte=0"`
	OnCampusHousing      *float64 `json:"onCampusHousing"      validate:"omitempty,gte=0"`
	MealPlan             *float64 `json:"mealPlan"             validate:"omitempty,gte=0"`
	Books                *float64 `json:"books"                validate:"omitempty,gte=0"`
	MiscPersonal         *float64 `json:"miscPersonal"         validate:"omitempty,gte=0"`
}

// Geography is the raw input of a campus_location block.
type Geography struct {
	Type            string `json:"-"`
	Address         string `json:"address"         validate:"max=512"`
	City            string `json:"city"            validate:"max=128"`
	State           string `json:"state"           validate:"max=128"`
	Country         string `json:"country"         validate:"max=128"`
	AirportOverride string `json:"airportOverride" validate:"omitempty,len=3,alpha"`
}

// Outcomes is the raw input of a student_outcomes block.  Rates are
// already normalised to 0–1.
type Outcomes struct {
	Type              string   `json:"-"`
	GraduationRate    *float64 `json:"graduationRate"    validate:"omitempty,gte=0,lte=1"`
	RetentionRate     *float64 `json:"retentionRate"     validate:"omitempty,gte=0,lte=1"`
	EmploymentRate    *float64 `json:"employmentRate"    validate:"omitempty,gte=0,lte=1"`
	AvgStartingSalary *float64 `json:"avgStartingSalary" validate:"omitempty,gte=0"`
}

// Soft carries any non-canonical block's data untouched.
type Soft struct {
	Type string
	Data json.RawMessage
}

func (p *Admissions) BlockType() string { return p.Type }
func (p *Financials) BlockType() string { return p.Type }
func (p *Geography) BlockType() string  { return p.Type }
func (p *Outcomes) BlockType() string   { return p.Type }
func (p *Soft) BlockType() string       { return p.Type }

func (*Admissions) isPayload() {}
func (*Financials) isPayload() {}
func (*Geography) isPayload()  {}
func (*Outcomes) isPayload()   {}
func (*Soft) isPayload()       {}
